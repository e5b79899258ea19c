// Package audio turns chapter text into canonical audio and applies the
// cut/restore edits described in an EditJournal, shelling out to ffmpeg for
// concatenation, range extraction, and duration probing.
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrFFmpegUnavailable is returned when ffmpeg or ffprobe isn't on PATH.
var ErrFFmpegUnavailable = fmt.Errorf("ffmpeg/ffprobe not found in PATH")

// CheckAvailable verifies ffmpeg and ffprobe are installed.
func CheckAvailable() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg", ErrFFmpegUnavailable)
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return fmt.Errorf("%w: ffprobe", ErrFFmpegUnavailable)
	}
	return nil
}

// Concatenate joins inputFiles in order into outputPath using ffmpeg's
// concat demuxer (stream copy, no re-encode).
func Concatenate(ctx context.Context, inputFiles []string, outputPath string) error {
	if len(inputFiles) == 0 {
		return fmt.Errorf("audio: no input files to concatenate")
	}
	if len(inputFiles) == 1 {
		data, err := os.ReadFile(inputFiles[0])
		if err != nil {
			return fmt.Errorf("audio: reading single input: %w", err)
		}
		return os.WriteFile(outputPath, data, 0o644)
	}

	listPath := outputPath + ".concat.txt"
	var lines []string
	for _, f := range inputFiles {
		escaped := strings.ReplaceAll(f, "'", "'\\''")
		lines = append(lines, fmt.Sprintf("file '%s'", escaped))
	}
	if err := os.WriteFile(listPath, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("audio: writing concat list: %w", err)
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio: ffmpeg concat failed: %w\n%s", err, out)
	}
	return nil
}

// ExtractRange writes the [startMS, endMS) slice of src to outputPath,
// re-encoding to keep frame boundaries accurate at the cut points.
func ExtractRange(ctx context.Context, src string, startMS, endMS int, outputPath string) error {
	if endMS <= startMS {
		return fmt.Errorf("audio: invalid range [%d, %d)", startMS, endMS)
	}
	startSec := float64(startMS) / 1000
	durSec := float64(endMS-startMS) / 1000

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-i", src,
		"-t", fmt.Sprintf("%.3f", durSec),
		"-y",
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("audio: ffmpeg extract failed: %w\n%s", err, out)
	}
	return nil
}

// RemoveRange writes src with the [startMS, endMS) slice cut out to
// outputPath, by extracting and concatenating the surrounding segments.
func RemoveRange(ctx context.Context, src string, startMS, endMS int, outputPath string) error {
	duration, err := DurationMS(ctx, src)
	if err != nil {
		return err
	}
	if startMS < 0 || endMS > duration || startMS >= endMS {
		return fmt.Errorf("audio: invalid range [%d, %d) for duration %d", startMS, endMS, duration)
	}

	dir := filepath.Dir(outputPath)
	var parts []string

	if startMS > 0 {
		before := filepath.Join(dir, "."+filepath.Base(outputPath)+".before.tmp")
		if err := ExtractRange(ctx, src, 0, startMS, before); err != nil {
			return err
		}
		defer os.Remove(before)
		parts = append(parts, before)
	}
	if endMS < duration {
		after := filepath.Join(dir, "."+filepath.Base(outputPath)+".after.tmp")
		if err := ExtractRange(ctx, src, endMS, duration, after); err != nil {
			return err
		}
		defer os.Remove(after)
		parts = append(parts, after)
	}
	if len(parts) == 0 {
		return fmt.Errorf("audio: removing the full range would leave no audio")
	}
	return Concatenate(ctx, parts, outputPath)
}

// DurationMS returns the duration of path in milliseconds via ffprobe.
func DurationMS(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("audio: ffprobe failed: %w", err)
	}
	var sec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &sec); err != nil {
		return 0, fmt.Errorf("audio: parsing ffprobe duration: %w", err)
	}
	return int(sec * 1000), nil
}
