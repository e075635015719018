package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func encodeTestJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeTestFrames(t *testing.T, dir string, names ...string) {
	t.Helper()
	for i, name := range names {
		data := encodeTestJPEG(t, 32+i, 24)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatalf("write test frame: %v", err)
		}
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, err := Open("rtsp://camera.local/stream", Options{}); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestOpenDirMissing(t *testing.T) {
	if _, err := Open("dir:"+filepath.Join(t.TempDir(), "missing"), Options{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestDirSourceRequiresJPEGs(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Open("dir:"+dir, Options{}); err == nil {
		t.Fatal("expected error for directory without JPEG files")
	}
}

func TestDirSourceReplaysInLoop(t *testing.T) {
	dir := t.TempDir()
	writeTestFrames(t, dir, "b.jpg", "a.jpg")

	src, err := Open("dir:"+dir, Options{FPS: 200})
	if err != nil {
		t.Fatalf("open dir source: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	var frames []Frame
	for range 3 {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		frames = append(frames, frame)
	}

	// Files replay sorted and wrap around.
	if frames[0].Width != 33 { // a.jpg was written second (32+1 wide)
		t.Errorf("expected a.jpg first (width 33), got %d", frames[0].Width)
	}
	if frames[2].Width != frames[0].Width {
		t.Errorf("expected loop back to first file, got widths %d and %d", frames[0].Width, frames[2].Width)
	}
	for i, frame := range frames {
		if frame.Seq != uint64(i+1) {
			t.Errorf("expected seq %d, got %d", i+1, frame.Seq)
		}
		if len(frame.Data) == 0 {
			t.Errorf("frame %d has no data", i)
		}
		if frame.Height != 24 {
			t.Errorf("expected height 24, got %d", frame.Height)
		}
	}
}

func TestDirSourceContextCancel(t *testing.T) {
	dir := t.TempDir()
	writeTestFrames(t, dir, "a.jpg")

	src, err := Open("dir:"+dir, Options{FPS: 1})
	if err != nil {
		t.Fatalf("open dir source: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = src.ReadFrame(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestDirSourceClose(t *testing.T) {
	dir := t.TempDir()
	writeTestFrames(t, dir, "a.jpg")

	src, err := Open("dir:"+dir, Options{FPS: 1000})
	if err != nil {
		t.Fatalf("open dir source: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Close is idempotent.
	if err := src.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if _, err := src.ReadFrame(context.Background()); !errors.Is(err, ErrSourceClosed) {
		t.Errorf("expected ErrSourceClosed, got %v", err)
	}
}

func TestJPEGSizeBadData(t *testing.T) {
	w, h := jpegSize([]byte("not a jpeg"))
	if w != 0 || h != 0 {
		t.Errorf("expected zero size for bad data, got %dx%d", w, h)
	}
}

func TestDevicesSmoke(t *testing.T) {
	// Result depends on the host; the call must not panic and entries must
	// carry paths.
	for _, d := range Devices() {
		if d.Path == "" {
			t.Error("device with empty path")
		}
	}
}
