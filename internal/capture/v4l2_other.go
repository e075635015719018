//go:build !linux

package capture

import "fmt"

// V4L2 capture rides the Linux video4linux2 API; other platforms can use
// the dir source for development.
func openV4L2(device string, opts Options) (Source, error) {
	return nil, fmt.Errorf("v4l2 capture source %q requires linux", device)
}
