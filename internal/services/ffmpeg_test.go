package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExtractSegmentRejectsInvalidWindow(t *testing.T) {
	svc := NewFFmpegService(t.TempDir())

	cases := []struct {
		name       string
		start, end float64
	}{
		{"end equals start", 5.0, 5.0},
		{"end before start", 9.0, 4.0},
		{"zero window", 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Source path deliberately nonexistent — validation must
			// reject the window before anything touches the file
			_, err := svc.ExtractSegment(context.Background(), "/nonexistent/video.mp4", tc.start, tc.end)
			if err == nil {
				t.Fatal("expected error")
			}

			var procErr *ProcessingError
			if !errors.As(err, &procErr) {
				t.Fatalf("expected ProcessingError, got %T: %v", err, err)
			}
			if procErr.Op != "validate" {
				t.Errorf("expected validate op, got %q", procErr.Op)
			}
		})
	}
}

func TestCleanupRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	svc := NewFFmpegService(dir)

	a := filepath.Join(dir, "a.mp4")
	b := filepath.Join(dir, "b.mp4")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	// Empty strings and already-missing files must be tolerated
	svc.Cleanup(a, "", b, filepath.Join(dir, "missing.mp4"))

	for _, p := range []string{a, b} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", p)
		}
	}
}

func TestCreateTempFileUnderTempDir(t *testing.T) {
	dir := t.TempDir()
	svc := NewFFmpegService(dir)

	path := svc.CreateTempFile("cut.mp4")
	if filepath.Dir(path) != dir {
		t.Errorf("expected path under %s, got %s", dir, path)
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := map[float64]string{
		0:     "0.000",
		5:     "5.000",
		2.5:   "2.500",
		10.25: "10.250",
	}
	for in, want := range cases {
		if got := formatSeconds(in); got != want {
			t.Errorf("formatSeconds(%v) = %q, want %q", in, got, want)
		}
	}
}
