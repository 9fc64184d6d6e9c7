// Package transcode adapts arbitrary audio inputs into the raw µ-law byte
// stream the device's media channel consumes: an ffmpeg subprocess for URLs
// and opaque uploads, and a native path for PCM16 WAV payloads.
package transcode

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
)

// ffmpegArgs builds the argument list converting input into raw mono µ-law on
// stdout at the requested sample rate.
func ffmpegArgs(input string, sampleRate int) []string {
	return []string{
		"-hide_banner",
		"-i", input,
		"-vn",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-acodec", "pcm_mulaw",
		"-f", "mulaw",
		"pipe:1",
	}
}

// processSource is an ffmpeg-backed byte source. Close reaps the subprocess.
type processSource struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
}

func (s *processSource) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *processSource) Close() error {
	_ = s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// StreamURL spawns ffmpeg reading from mediaURL and returns its µ-law output
// as a byte source. The subprocess is killed when ctx is cancelled or the
// source is closed.
func StreamURL(ctx context.Context, mediaURL string, sampleRate int) (io.ReadCloser, error) {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	return startFFmpeg(ctx, exec.CommandContext(ctx, "ffmpeg", ffmpegArgs(mediaURL, sampleRate)...), nil)
}

// StreamBytes spawns ffmpeg reading the given payload from stdin and returns
// its µ-law output as a byte source.
func StreamBytes(ctx context.Context, data []byte, sampleRate int) (io.ReadCloser, error) {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", ffmpegArgs("pipe:0", sampleRate)...)
	return startFFmpeg(ctx, cmd, bytes.NewReader(data))
}

func startFFmpeg(ctx context.Context, cmd *exec.Cmd, stdin io.Reader) (io.ReadCloser, error) {
	cmd.Stdin = stdin

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open ffmpeg stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Debug("[Transcode] ffmpeg", "output", scanner.Text())
		}
	}()

	return &processSource{stdout: stdout, cmd: cmd}, nil
}
