package devices

import (
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/v4lcap/internal/events"
)

// Monitor tracks the set of capture devices and publishes
// DeviceAddedEvent and DeviceRemovedEvent when it changes.
type Monitor struct {
	detector Detector
	bus      *events.Bus
	logger   *slog.Logger

	// settle is how long to wait after an add before rescanning, so the
	// kernel can finish registering the node.
	settle time.Duration

	mu   sync.Mutex
	last map[string]DeviceInfo // keyed by device path
}

// NewMonitor creates a monitor publishing on bus.
func NewMonitor(detector Detector, bus *events.Bus, logger *slog.Logger) *Monitor {
	return &Monitor{
		detector: detector,
		bus:      bus,
		logger:   logger,
		settle:   time.Second,
		last:     make(map[string]DeviceInfo),
	}
}

// Devices returns the devices seen by the last scan.
func (m *Monitor) Devices() []DeviceInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeviceInfo, 0, len(m.last))
	for _, d := range m.last {
		out = append(out, d)
	}
	return out
}

// Sync rescans devices and publishes the differences from the previous scan.
func (m *Monitor) Sync() error {
	found, err := m.detector.FindDevices()
	if err != nil {
		return err
	}

	current := make(map[string]DeviceInfo, len(found))
	for _, d := range found {
		current[d.DevicePath] = d
	}

	m.mu.Lock()
	previous := m.last
	m.last = current
	m.mu.Unlock()

	ts := time.Now().Format(time.RFC3339)
	for path, d := range current {
		if _, ok := previous[path]; !ok {
			m.logger.Info("Capture device added", "path", path, "name", d.DeviceName, "device_id", d.DeviceID)
			m.bus.Publish(events.DeviceAddedEvent{DevicePath: path, Timestamp: ts})
		}
	}
	for path := range previous {
		if _, ok := current[path]; !ok {
			m.logger.Info("Capture device removed", "path", path)
			m.bus.Publish(events.DeviceRemovedEvent{DevicePath: path, Timestamp: ts})
		}
	}
	return nil
}
