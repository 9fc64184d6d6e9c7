// Package doorbell owns the per-device audio session lifecycle: starting,
// stopping and restarting the single outbound audio stream a device may have,
// and serializing those transitions so two playback tasks can never coexist.
package doorbell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/bellbridge/internal/config"
	"github.com/sebas/bellbridge/internal/media"
	"github.com/sebas/bellbridge/internal/transcode"
)

// State is the audio session state of one device.
type State int32

const (
	StateStopped State = iota
	StateStopping
	StateRestarting
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStopping:
		return "stopping"
	case StateRestarting:
		return "restarting"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// ErrStreamNotStopped reports that a playback task's completion was observed
// but the session state did not read stopped afterwards. This means the
// per-device exclusion invariant was violated and the transition must not
// proceed.
var ErrStreamNotStopped = errors.New("output stream failed to stop")

// MediaChannel is the authenticated transport to one device's audio channel.
// Implemented by isapi.Client.
type MediaChannel interface {
	OpenChannel(ctx context.Context) error
	CloseChannel(ctx context.Context) error
	StreamAudio(ctx context.Context, body io.Reader) error
}

// StatusPublisher receives device status events. Implemented by
// events.Publisher.
type StatusPublisher interface {
	DeviceReady(key string)
	DeviceDiscovery(key, name string)
	ButtonPressed(key string)
}

// Controller drives one device's outbound audio session. All transitions run
// under the controller's own mutex, so independent devices never block each
// other. A controller is created once per device at startup and lives for the
// process lifetime.
type Controller struct {
	key     string
	cfg     config.DoorbellConfig
	channel MediaChannel
	events  StatusPublisher
	pacer   media.Pacer
	log     *slog.Logger

	// settleDelay is the pause between a restart's stop completing and the
	// replay starting. Shortened in tests.
	settleDelay time.Duration

	mu     sync.Mutex
	state  atomic.Int32
	source io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController builds the controller for one device and announces it on the
// status publisher.
func NewController(key string, cfg config.DoorbellConfig, channel MediaChannel, events StatusPublisher) *Controller {
	done := make(chan struct{})
	close(done)

	c := &Controller{
		key:         key,
		cfg:         cfg,
		channel:     channel,
		events:      events,
		pacer:       media.NewPacer(cfg.OutgoingSampleRate, cfg.PacketSize),
		log:         slog.With("doorbell", key),
		settleDelay: time.Second,
		done:        done,
	}

	if events != nil {
		events.DeviceReady(key)
		events.DeviceDiscovery(key, cfg.Name)
	}
	return c
}

// State returns the current session state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Playing reports whether an output stream is currently active.
func (c *Controller) Playing() bool {
	return c.State() == StatePlaying
}

// Stop cancels any in-flight playback and waits for the task to fully end.
// Returns ErrStreamNotStopped if the completed task left the session in a
// state other than stopped.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked()
}

// stopLocked runs the stop sequence under c.mu: signal cancellation if a task
// is in flight, await its completion, and verify the session reads stopped.
func (c *Controller) stopLocked() error {
	if c.State() != StateStopped {
		c.state.Store(int32(StateStopping))
		c.cancel()
	}

	<-c.done

	if state := c.State(); state != StateStopped {
		c.log.Warn("[Doorbell] Expected output stream to be stopped after aborting", "state", state)
		return ErrStreamNotStopped
	}
	return nil
}

// Play stops whatever is running, then streams source to the device's media
// channel at the configured pace. It blocks until playback fully ends, whether
// by source exhaustion or cancellation, and only then returns.
func (c *Controller) Play(source io.ReadCloser) error {
	c.mu.Lock()
	if err := c.stopLocked(); err != nil {
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.cancel = cancel
	c.done = done
	c.source = source
	c.state.Store(int32(StatePlaying))

	go c.run(ctx, source, done)
	c.mu.Unlock()

	<-done
	return nil
}

// HandleButtonPress publishes the pressed status and, if audio is currently
// playing, restarts the stream from its live source: cancel, await
// completion, settle, replay. A press while idle starts nothing.
func (c *Controller) HandleButtonPress() error {
	c.log.Info("[Doorbell] Handling doorbell button press")
	if c.events != nil {
		c.events.ButtonPressed(c.key)
	}

	c.mu.Lock()
	if c.State() != StatePlaying || c.source == nil {
		c.mu.Unlock()
		return nil
	}

	c.log.Info("[Doorbell] Restarting output stream")
	c.state.Store(int32(StateRestarting))
	c.cancel()
	done := c.done
	source := c.source
	c.mu.Unlock()

	<-done
	time.Sleep(c.settleDelay)
	return c.Play(source)
}

// PlayURL transcodes the audio at mediaURL to raw µ-law and plays it.
func (c *Controller) PlayURL(mediaURL string) error {
	c.log.Debug("[Doorbell] Playing audio from url", "url", mediaURL)

	source, err := transcode.StreamURL(context.Background(), mediaURL, c.cfg.OutgoingSampleRate)
	if err != nil {
		return err
	}
	return c.Play(source)
}

// PlayBytes transcodes an in-memory audio payload and plays it. PCM16 WAV
// payloads convert natively; anything else goes through ffmpeg.
func (c *Controller) PlayBytes(data []byte) error {
	c.log.Debug("[Doorbell] Playing audio data", "bytes", len(data))

	if transcode.IsWAV(data) {
		ulaw, err := transcode.WAVToMulaw(data, c.cfg.OutgoingSampleRate)
		if err == nil {
			return c.Play(io.NopCloser(bytes.NewReader(ulaw)))
		}
		c.log.Debug("[Doorbell] Native WAV conversion failed, falling back to ffmpeg", "error", err)
	}

	source, err := transcode.StreamBytes(context.Background(), data, c.cfg.OutgoingSampleRate)
	if err != nil {
		return err
	}
	return c.Play(source)
}

// run is the playback task. It owns the media channel for the duration of one
// stream: close any stale channel, open a fresh one, feed the paced audio
// through the streaming request, and tear everything down. Setting the state
// back to stopped is the task's last action no matter how the loop exited.
func (c *Controller) run(ctx context.Context, source io.ReadCloser, done chan struct{}) {
	log := c.log.With("run", uuid.NewString()[:8])

	defer func() {
		c.state.Store(int32(StateStopped))
		close(done)
	}()
	defer func() {
		if c.State() == StatePlaying {
			// Reached the end of the stream
			if err := source.Close(); err != nil {
				log.Debug("[Doorbell] Failed to close source", "error", err)
			}
		}
		if err := c.channel.CloseChannel(context.Background()); err != nil {
			log.Warn("[Doorbell] Failed to close media channel", "error", err)
		}
	}()

	log.Info("[Doorbell] Starting output stream playback")

	// Clear any channel left open by a previous abnormal end before opening.
	if err := c.channel.CloseChannel(ctx); err != nil {
		log.Warn("[Doorbell] Failed to clear media channel", "error", err)
		return
	}
	if err := c.channel.OpenChannel(ctx); err != nil {
		log.Warn("[Doorbell] Failed to open media channel", "error", err)
		return
	}

	// The pipe is the intermediary buffer between the paced loop and the
	// streaming request body.
	pr, pw := io.Pipe()
	go func() {
		err := c.channel.StreamAudio(ctx, pr)
		if err != nil && ctx.Err() == nil {
			log.Warn("[Doorbell] Audio stream request ended with error", "error", err)
		}
		// Unblock the paced loop if the request ended before the source did.
		pr.CloseWithError(io.ErrClosedPipe)
	}()

	err := c.pacer.Stream(ctx, source, pw)
	pw.Close()

	switch {
	case err == nil:
		log.Info("[Doorbell] Output stream finished")
	case errors.Is(err, context.Canceled):
		// Cancellation is an expected way for playback to end.
	default:
		log.Warn("[Doorbell] Unexpected error during stream playback", "error", err)
	}
}
