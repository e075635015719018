//go:build linux

package capture

import (
	"context"
	"sync"
	"time"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"
)

// V4L2 fourcc codes for the compressed formats the pipeline can pass
// through without re-encoding.
const (
	pixelFormatMJPEG = webcam.PixelFormat(0x47504A4D) // 'MJPG'
	pixelFormatJPEG  = webcam.PixelFormat(0x4745504A) // 'JPEG'
)

// v4l2Source streams MJPEG frames from a V4L2 device. A pump goroutine
// keeps at most one frame buffered so the consumer always sees the
// freshest frame the device produced.
type v4l2Source struct {
	frames chan Frame
	stop   chan struct{}
	done   chan struct{}
	width  int
	height int

	err       error // set by the pump before done closes
	closeOnce sync.Once
}

func openV4L2(device string, opts Options) (Source, error) {
	cam, err := webcam.Open(device)
	if err != nil {
		return nil, errors.Wrap(err, "can not open device")
	}

	format, ok := pickJPEGFormat(cam.GetSupportedFormats())
	if !ok {
		cam.Close()
		return nil, errors.Errorf("device %s does not provide an MJPEG stream", device)
	}

	width, height := uint32(opts.Width), uint32(opts.Height)
	if width == 0 {
		width = 640
	}
	if height == 0 {
		height = 480
	}

	_, actualWidth, actualHeight, err := cam.SetImageFormat(format, width, height)
	if err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "can not set image format")
	}

	if err := cam.StartStreaming(); err != nil {
		cam.Close()
		return nil, errors.Wrap(err, "can not start streaming")
	}

	s := &v4l2Source{
		frames: make(chan Frame, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		width:  int(actualWidth),
		height: int(actualHeight),
	}
	go s.pump(cam)
	return s, nil
}

func pickJPEGFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	if _, ok := formats[pixelFormatMJPEG]; ok {
		return pixelFormatMJPEG, true
	}
	if _, ok := formats[pixelFormatJPEG]; ok {
		return pixelFormatJPEG, true
	}
	return 0, false
}

func (s *v4l2Source) pump(cam *webcam.Webcam) {
	defer close(s.done)
	defer cam.Close()

	var seq uint64
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		err := cam.WaitForFrame(1)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			continue
		default:
			s.err = errors.Wrap(err, "frame wait failed")
			return
		}

		data, err := cam.ReadFrame()
		if err != nil {
			s.err = errors.Wrap(err, "read frame failed")
			return
		}
		if len(data) == 0 {
			continue
		}

		if len(s.frames) > 0 {
			continue // consumer is behind, keep only the freshest frame
		}

		// ReadFrame returns a view into the driver's mmap buffer, which the
		// next read reuses.
		owned := make([]byte, len(data))
		copy(owned, data)

		seq++
		frame := Frame{
			Data:   owned,
			Width:  s.width,
			Height: s.height,
			Seq:    seq,
			Time:   time.Now(),
		}
		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		}
	}
}

func (s *v4l2Source) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		if s.err != nil {
			return Frame{}, s.err
		}
		return Frame{}, ErrSourceClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *v4l2Source) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return nil
}
