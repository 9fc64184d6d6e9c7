// Package media implements the pull-paced streaming primitive used to feed
// audio bytes to a device at its ingestion bitrate. The device's media channel
// has no flow control of its own, so the sender self-paces writes at the
// configured sample-rate/packet-size ratio.
package media

import (
	"context"
	"errors"
	"io"
	"time"
)

// Pacer drains a byte source one packet at a time, forwarding each chunk into
// the sink and then waiting one pacing interval. It carries no state of its
// own and may be reused across streams.
type Pacer struct {
	PacketSize int
	Interval   time.Duration
}

// NewPacer builds a pacer for the given outgoing sample rate and packet size.
// The interval is one packet's worth of samples: 40ms for 8000Hz/320 bytes.
func NewPacer(sampleRate, packetSize int) Pacer {
	if sampleRate <= 0 {
		sampleRate = 8000
	}
	if packetSize <= 0 {
		packetSize = 320
	}
	return Pacer{
		PacketSize: packetSize,
		Interval:   time.Duration(packetSize) * time.Second / time.Duration(sampleRate),
	}
}

// Stream pulls chunks of up to PacketSize bytes from src and writes them to
// dst, pausing one interval between chunks. The pause aborts as soon as ctx is
// cancelled, so a cancellation mid-stream unblocks within one interval rather
// than after the remaining duration of the source.
//
// Returns nil when src is exhausted, ctx.Err() on cancellation, and the
// underlying error for any read or write failure.
func (p Pacer) Stream(ctx context.Context, src io.Reader, dst io.Writer) error {
	buf := make([]byte, p.PacketSize)
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
