package devices

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveDevicePath converts a stable device ID, as reported by FindDevices,
// into the /dev/videoN node it currently links to. Paths under /dev are
// returned unchanged.
func ResolveDevicePath(deviceID string) (string, error) {
	if strings.HasPrefix(deviceID, "/dev/") {
		return deviceID, nil
	}

	for _, dir := range []string{"/dev/v4l/by-id/", "/dev/v4l/by-path/"} {
		if devicePath, err := filepath.EvalSymlinks(dir + deviceID); err == nil {
			return devicePath, nil
		}
	}

	return "", fmt.Errorf("no device node found for device ID: %s", deviceID)
}
