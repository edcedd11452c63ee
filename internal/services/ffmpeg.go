package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProcessingError is a fatal failure of the local transcode step — corrupt
// input, unsupported codec, or ffmpeg itself missing. Fatal for the clip,
// never for the batch.
type ProcessingError struct {
	Op  string
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing failed (%s): %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// FFmpegService — segment extraction
// Cuts a time-bounded window out of the source video as a new, re-encoded
// artifact. Re-encoding (not -c copy) guarantees frame-accurate boundaries,
// which the downstream generation model needs.
// ---------------------------------------------------------------------------

type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) *FFmpegService {
	// Create temp directory if it doesn't exist
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}

	return &FFmpegService{
		tempDir: tempDir,
	}
}

// ExtractSegment re-encodes the [startSec, endSec) window of sourcePath into
// a new mp4 under the temp dir and returns its path. The caller owns the
// artifact and must release it with Cleanup on every exit path.
//
// The window is validated before ffmpeg is ever invoked: a non-positive
// duration is rejected up front.
func (s *FFmpegService) ExtractSegment(ctx context.Context, sourcePath string, startSec, endSec float64) (string, error) {
	duration := endSec - startSec
	if duration <= 0 {
		return "", &ProcessingError{
			Op:  "validate",
			Err: fmt.Errorf("invalid segment window: end (%.2fs) must be after start (%.2fs)", endSec, startSec),
		}
	}

	outputPath := s.CreateTempFile(fmt.Sprintf("cut-%s.mp4", uuid.New().String()))

	args := []string{
		"-i", sourcePath,
		"-ss", formatSeconds(startSec),
		"-t", formatSeconds(duration),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-y",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		// Remove the partial artifact — it's unusable
		os.Remove(outputPath)
		return "", &ProcessingError{Op: "extract", Err: fmt.Errorf("ffmpeg cut %.2fs-%.2fs failed: %w", startSec, endSec, err)}
	}

	return outputPath, nil
}

// GetVideoDuration returns the duration of a video file in milliseconds using ffprobe.
func (s *FFmpegService) GetVideoDuration(ctx context.Context, videoPath string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, "ffprobe", args...)
	output, err := cmd.Output()
	if err != nil {
		return 0, &ProcessingError{Op: "probe", Err: fmt.Errorf("ffprobe failed: %w", err)}
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(output)), "%f", &durationSec); err != nil {
		return 0, &ProcessingError{Op: "probe", Err: fmt.Errorf("failed to parse duration: %w", err)}
	}

	return int(durationSec * 1000), nil
}

// CreateTempFile creates a temporary file path in the service's temp directory
func (s *FFmpegService) CreateTempFile(filename string) string {
	return filepath.Join(s.tempDir, filename)
}

// Cleanup removes temporary files
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, path := range paths {
		if path != "" {
			os.Remove(path)
		}
	}
}

// formatSeconds renders a seconds value the way ffmpeg expects it on the
// command line, without trailing float noise.
func formatSeconds(sec float64) string {
	d := time.Duration(sec * float64(time.Second))
	return fmt.Sprintf("%.3f", d.Seconds())
}
