package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

const DefaultBinary = "ffmpeg"

// Transcoder converts audio to 16-bit PCM WAV by shelling out to ffmpeg.
type Transcoder struct {
	binary     string
	sampleRate int
	channels   int
}

func New(binary string) *Transcoder {
	if strings.TrimSpace(binary) == "" {
		binary = DefaultBinary
	}
	return &Transcoder{binary: binary, sampleRate: 44100, channels: 2}
}

func (t *Transcoder) args(inPath, outPath string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", inPath,
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(t.sampleRate),
		"-ac", fmt.Sprint(t.channels),
		outPath,
	}
}

func (t *Transcoder) Transcode(ctx context.Context, inPath, outPath string) error {
	cmd := exec.CommandContext(ctx, t.binary, t.args(inPath, outPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		_ = os.Remove(outPath)
		msg := strings.TrimSpace(stderr.String())
		slog.Warn("transcode_failed", "input", inPath, "error", err, "stderr", msg)
		if msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}
