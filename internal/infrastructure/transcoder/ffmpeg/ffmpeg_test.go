package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsRequestPCMWav(t *testing.T) {
	args := New("").args("in.mp3", "out.wav")
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", "in.mp3",
		"-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2",
		"out.wav",
	}, args)
}

func fakeBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestTranscodeRunsBinary(t *testing.T) {
	// the output path is the last argument
	bin := fakeBinary(t, `for last; do :; done; echo converted > "$last"`)
	out := filepath.Join(t.TempDir(), "out.wav")

	require.NoError(t, New(bin).Transcode(context.Background(), "in.mp3", out))
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "converted\n", string(raw))
}

func TestTranscodeReportsStderrAndRemovesOutput(t *testing.T) {
	bin := fakeBinary(t, `for last; do :; done; echo partial > "$last"; echo "Invalid data found" >&2; exit 1`)
	out := filepath.Join(t.TempDir(), "out.wav")

	err := New(bin).Transcode(context.Background(), "in.mp3", out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}
