package capture

import (
	"os"
	"path/filepath"
	"strings"
)

// Device is one enumerable capture device.
type Device struct {
	Path string
	Name string
}

// Devices lists the V4L2 devices present on the host. The name comes from
// sysfs when readable; the list is empty on platforms without /dev/video
// nodes.
func Devices() []Device {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil
	}

	devices := make([]Device, 0, len(paths))
	for _, path := range paths {
		name := ""
		sysfs := filepath.Join("/sys/class/video4linux", filepath.Base(path), "name")
		if data, err := os.ReadFile(sysfs); err == nil {
			name = strings.TrimSpace(string(data))
		}
		devices = append(devices, Device{Path: path, Name: name})
	}
	return devices
}
