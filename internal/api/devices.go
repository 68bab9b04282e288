package api

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"slices"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4lcap/internal/api/models"
	"github.com/smazurov/v4lcap/internal/devices"
	"github.com/smazurov/v4lcap/pkg/linuxav/camera"
	"github.com/smazurov/v4lcap/pkg/linuxav/v4l2"
)

// DeviceFormatsInput selects a device by path.
type DeviceFormatsInput struct {
	Path string `query:"path" required:"true" example:"/dev/video0" doc:"Device path or stable device ID"`
}

// capabilityNames lists the V4L2 capability flags reported by the API.
var capabilityNames = []struct {
	flag uint32
	name string
}{
	{0x00000001, "Video Capture"},
	{0x00000002, "Video Output"},
	{0x00000004, "Video Overlay"},
	{0x00001000, "Multi-planar Video Capture"},
	{0x00008000, "Memory-to-Memory"},
	{0x00200000, "Extended Pixel Format"},
	{0x00800000, "Metadata Capture"},
	{0x01000000, "Read/Write I/O"},
	{0x04000000, "Streaming I/O"},
	{0x20000000, "Media Controller I/O"},
}

// translateCapabilities converts V4L2 capability flags to readable strings
func translateCapabilities(caps uint32) []string {
	names := []string{}
	for _, c := range capabilityNames {
		if caps&c.flag != 0 {
			names = append(names, c.name)
		}
	}
	return names
}

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List all available V4L2 capture devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*models.DeviceResponse, error) {
		found, err := s.options.Detector.FindDevices()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get devices", err)
		}

		list := make([]models.DeviceInfo, len(found))
		for i, d := range found {
			list[i] = models.DeviceInfo{
				DevicePath:   d.DevicePath,
				DeviceName:   d.DeviceName,
				DeviceID:     d.DeviceID,
				Caps:         d.Caps,
				Capabilities: translateCapabilities(d.Caps),
			}
		}
		slices.SortFunc(list, func(a, b models.DeviceInfo) int {
			return strings.Compare(a.DevicePath, b.DevicePath)
		})

		return &models.DeviceResponse{
			Body: models.DeviceData{Devices: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "device-formats",
		Method:      http.MethodGet,
		Path:        "/api/devices/formats",
		Summary:     "Formats",
		Description: "List pixel formats, frame sizes and frame rates of a device",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 404, 500},
	}, func(_ context.Context, input *DeviceFormatsInput) (*models.DeviceFormatsResponse, error) {
		devicePath, err := devices.ResolveDevicePath(input.Path)
		if err != nil {
			return nil, huma.Error404NotFound("Device not found", err)
		}
		details, err := devices.Describe(s.options.Detector, devicePath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, huma.Error404NotFound("Device not found", err)
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to get device formats", err)
		}

		converters := camera.DefaultConverters()
		formats := make([]models.FormatInfo, len(details))
		for i, d := range details {
			f := models.FormatInfo{
				PixelFormat: v4l2.FormatFourCC(d.PixelFormat),
				FormatName:  d.FormatName,
				Emulated:    d.Emulated,
				Convertible: converters.Lookup(d.PixelFormat) != nil,
				Sizes:       make([]models.FrameSize, len(d.Sizes)),
			}
			for j, size := range d.Sizes {
				rates := make([]models.Framerate, len(size.Framerates))
				for k, r := range size.Framerates {
					rates[k] = models.Framerate{Numerator: r.Numerator, Denominator: r.Denominator, FPS: r.FPS()}
				}
				f.Sizes[j] = models.FrameSize{Width: size.Width, Height: size.Height, Framerates: rates}
			}
			formats[i] = f
		}

		return &models.DeviceFormatsResponse{
			Body: models.DeviceFormatsData{DevicePath: devicePath, Formats: formats},
		}, nil
	})
}
