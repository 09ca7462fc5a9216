package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober measures media duration
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFProbe shells out to ffprobe
type FFProbe struct{}

func (FFProbe) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return ParseSeconds(string(out))
}

// ParseSeconds converts ffprobe's "12.345000" into a duration rounded to the millisecond
func ParseSeconds(s string) (time.Duration, error) {
	sec, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)).Round(time.Millisecond), nil
}
