package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// dirSource replays the JPEG files of a directory in a loop at a fixed
// rate. It exists for development and tests; the bytes pass through
// without decoding.
type dirSource struct {
	files    []string
	interval time.Duration
	next     int
	seq      uint64
	closed   chan struct{}
}

func newDirSource(path string, opts Options) (*dirSource, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read source directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no JPEG files in %s", path)
	}

	fps := opts.FPS
	if fps <= 0 {
		fps = 10
	}

	return &dirSource{
		files:    files,
		interval: time.Second / time.Duration(fps),
		closed:   make(chan struct{}),
	}, nil
}

func (s *dirSource) ReadFrame(ctx context.Context) (Frame, error) {
	select {
	case <-s.closed:
		return Frame{}, ErrSourceClosed
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case <-time.After(s.interval):
	}

	path := s.files[s.next%len(s.files)]
	s.next++

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame file: %w", err)
	}

	width, height := jpegSize(data)
	s.seq++
	return Frame{
		Data:   data,
		Width:  width,
		Height: height,
		Seq:    s.seq,
		Time:   time.Now(),
	}, nil
}

func (s *dirSource) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

// jpegSize reads the image dimensions from the JPEG header. Returns zeros
// when the header cannot be parsed; the frame still passes through.
func jpegSize(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
