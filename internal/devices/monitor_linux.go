//go:build linux

package devices

import (
	"context"
	"errors"
	"time"

	"github.com/smazurov/v4lcap/pkg/linuxav/hotplug"
)

// Run performs an initial scan and then rescans on every video4linux
// uevent until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Sync(); err != nil {
		m.logger.Warn("Failed to get initial device list", "error", err)
	} else {
		m.logger.Info("Initialized with V4L2 devices", "count", len(m.Devices()))
	}

	mon, err := hotplug.NewVideoMonitor()
	if err != nil {
		return err
	}
	defer func() { _ = mon.Close() }()

	uevents := make(chan hotplug.Event, 16)
	runErr := make(chan error, 1)
	go func() { runErr <- mon.Run(ctx, uevents) }()

	m.logger.Info("Hotplug monitoring started")
	for ev := range uevents {
		if ev.Action != hotplug.ActionAdd && ev.Action != hotplug.ActionRemove {
			continue
		}
		m.logger.Debug("Uevent", "action", ev.Action, "node", ev.DeviceNode())

		if ev.Action == hotplug.ActionAdd {
			select {
			case <-time.After(m.settle):
			case <-ctx.Done():
			}
		}
		if err := m.Sync(); err != nil {
			m.logger.Warn("Failed to rescan devices", "error", err)
		}
	}

	err = <-runErr
	if errors.Is(err, context.Canceled) {
		m.logger.Info("Hotplug monitoring stopped")
		return nil
	}
	return err
}
