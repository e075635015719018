// Package capture provides frame sources for the kiosk pipeline. A source
// produces encoded JPEG frames; decoding is left to the embedding service.
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSourceClosed is returned by ReadFrame after Close.
var ErrSourceClosed = errors.New("capture source closed")

// Frame is one captured frame. Data holds the encoded JPEG bytes.
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Seq    uint64
	Time   time.Time
}

// Source produces frames. ReadFrame blocks until the next frame arrives,
// the context is cancelled or the source fails. Sources are read by a
// single goroutine.
type Source interface {
	ReadFrame(ctx context.Context) (Frame, error)
	Close() error
}

// Options carries the requested capture parameters. Devices may negotiate
// different values; the frames report what was actually delivered.
type Options struct {
	Width  int
	Height int
	FPS    int
}

// Open creates a source from a URL of the form v4l2:<device> or dir:<path>.
// A bare path without a scheme is treated as a V4L2 device.
func Open(url string, opts Options) (Source, error) {
	scheme, rest, found := strings.Cut(url, ":")
	if !found {
		return openV4L2(url, opts)
	}

	switch scheme {
	case "v4l2":
		return openV4L2(rest, opts)
	case "dir":
		return newDirSource(rest, opts)
	}
	return nil, fmt.Errorf("unsupported capture source %q", url)
}
