// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/termuxwc/termuxwc/framesource"
	"github.com/termuxwc/termuxwc/lib/clock"
	"github.com/termuxwc/termuxwc/lib/damage"
	"github.com/termuxwc/termuxwc/lib/pixel"
)

// Frame is one published frame. It is immutable once published.
type Frame struct {
	// Buffer is in pixel.ServerFormat.
	Buffer *pixel.FrameBuffer

	// Seq increases by one per publish. The initial blank frame is 0.
	Seq uint64

	// Damage is the area that changed relative to Seq-1.
	Damage damage.Region

	Published time.Time
}

// Options configures a Bridge.
type Options struct {
	// Width and Height size the initial blank frame viewers see
	// before the compositor commits anything.
	Width  int
	Height int

	// SourceFormat, when set, is the only layout accepted from the
	// source. A frame in any other layout stops the bridge with
	// pixel.ErrFormatMismatch.
	SourceFormat pixel.PixelFormat

	// MaxFPS caps the publish rate. Zero means 30.
	MaxFPS int

	// DamageTracking diffs each frame against the previous one. When
	// false every frame is published with full damage.
	DamageTracking bool

	// TileSize is the damage tile edge. Zero means damage.TileSize.
	TileSize int

	// Clock drives rate control. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger
}

// Stats is a snapshot of the bridge counters.
type Stats struct {
	Seq         uint64 `json:"seq"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Published   uint64 `json:"published"`
	Unchanged   uint64 `json:"unchanged"`
	Resizes     uint64 `json:"resizes"`
	Committed   uint64 `json:"committed"`
	Coalesced   uint64 `json:"coalesced"`
	Subscribers int    `json:"subscribers"`
	Digest      string `json:"digest"`
}

// Bridge is the frame pump. Create it with New and start it with Run.
type Bridge struct {
	source   framesource.Source
	options  Options
	clock    clock.Clock
	interval time.Duration

	current atomic.Pointer[Frame]

	mu          sync.Mutex
	subscribers map[string]*Subscription
	closed      bool

	published atomic.Uint64
	unchanged atomic.Uint64
	resizes   atomic.Uint64

	done     chan struct{}
	doneOnce sync.Once
}

// New validates options and publishes a blank frame at Seq 0.
func New(source framesource.Source, options Options) (*Bridge, error) {
	if source == nil {
		return nil, errors.New("bridge: source is required")
	}
	if options.Width <= 0 || options.Height <= 0 {
		return nil, fmt.Errorf("bridge: invalid initial size %dx%d", options.Width, options.Height)
	}
	if options.SourceFormat != (pixel.PixelFormat{}) {
		if err := options.SourceFormat.Validate(); err != nil {
			return nil, fmt.Errorf("bridge: %w: %v", pixel.ErrFormatMismatch, err)
		}
	}
	if options.MaxFPS < 0 {
		return nil, fmt.Errorf("bridge: negative max fps %d", options.MaxFPS)
	}
	if options.MaxFPS == 0 {
		options.MaxFPS = 30
	}
	if options.TileSize <= 0 {
		options.TileSize = damage.TileSize
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	b := &Bridge{
		source:      source,
		options:     options,
		clock:       options.Clock,
		interval:    time.Second / time.Duration(options.MaxFPS),
		subscribers: make(map[string]*Subscription),
		done:        make(chan struct{}),
	}
	b.current.Store(&Frame{
		Buffer:    pixel.NewFrameBuffer(options.Width, options.Height, pixel.ServerFormat),
		Damage:    damage.Full(options.Width, options.Height),
		Published: b.clock.Now(),
	})
	return b, nil
}

func (b *Bridge) logger() *slog.Logger {
	return b.options.Logger
}

// Run pumps frames until the source closes, ctx is cancelled, or a
// frame has the wrong format. It returns an error wrapping
// framesource.ErrSourceClosed when the output goes away and nil on
// cancellation. Every subscription is closed before Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.shutdown()

	var nextPublish time.Time
	for {
		if wait := nextPublish.Sub(b.clock.Now()); wait > 0 {
			select {
			case <-b.clock.After(wait):
			case <-ctx.Done():
				return nil
			}
		}

		buffer, err := b.source.WaitForFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, framesource.ErrSourceClosed) {
				b.logger().Info("frame source closed, stopping bridge",
					"seq", b.current.Load().Seq,
				)
			}
			return fmt.Errorf("bridge: %w", err)
		}

		published, err := b.publish(buffer)
		if err != nil {
			b.logger().Error("frame rejected, stopping bridge", "error", err)
			return err
		}
		if published {
			nextPublish = b.clock.Now().Add(b.interval)
		}
	}
}

// publish converts and publishes one source frame. It reports false
// for a frame identical to the current one.
func (b *Bridge) publish(source *pixel.FrameBuffer) (bool, error) {
	if err := source.Validate(); err != nil {
		return false, fmt.Errorf("bridge: invalid frame: %w", err)
	}
	expected := b.options.SourceFormat
	if expected != (pixel.PixelFormat{}) && !source.Format.SameLayout(expected) {
		return false, fmt.Errorf("bridge: %w: frame is %s, configured %s",
			pixel.ErrFormatMismatch, source.Format, expected)
	}

	converted, err := pixel.ConvertFrame(source, pixel.ServerFormat)
	if err != nil {
		return false, fmt.Errorf("bridge: converting frame: %w", err)
	}

	previous := b.current.Load()
	resized := !previous.Buffer.SameGeometry(converted)

	var region damage.Region
	switch {
	case resized || !b.options.DamageTracking:
		region = damage.Full(converted.Width, converted.Height)
	default:
		region = damage.Diff(previous.Buffer, converted, b.options.TileSize)
		if region.Empty() {
			b.unchanged.Add(1)
			return false, nil
		}
	}

	frame := &Frame{
		Buffer:    converted,
		Seq:       previous.Seq + 1,
		Damage:    region,
		Published: b.clock.Now(),
	}
	b.published.Add(1)

	if resized {
		b.resizes.Add(1)
		b.logger().Info("output resized",
			"width", converted.Width,
			"height", converted.Height,
			"previous_width", previous.Buffer.Width,
			"previous_height", previous.Buffer.Height,
		)
	}

	// Storing and marking under b.mu lets Subscription.Take see a
	// frame together with exactly the damage that produced it.
	b.mu.Lock()
	b.current.Store(frame)
	for _, subscription := range b.subscribers {
		if resized {
			subscription.resize(converted.Width, converted.Height)
		} else {
			subscription.mark(region)
		}
	}
	b.mu.Unlock()
	return true, nil
}

// Current returns the most recently published frame. It never blocks
// and never returns nil.
func (b *Bridge) Current() *Frame {
	return b.current.Load()
}

// Size returns the dimensions of the current frame.
func (b *Bridge) Size() (width, height int) {
	buffer := b.current.Load().Buffer
	return buffer.Width, buffer.Height
}

// Subscribe registers a subscriber under id, replacing any previous
// subscription with the same id. The subscription starts fully
// damaged. After the bridge has stopped, the returned subscription is
// already closed.
func (b *Bridge) Subscribe(id string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffer := b.current.Load().Buffer
	subscription := newSubscription(id, b, buffer.Width, buffer.Height, b.options.TileSize)
	if b.closed {
		subscription.close()
		return subscription
	}
	if previous := b.subscribers[id]; previous != nil {
		previous.close()
	}
	b.subscribers[id] = subscription
	return subscription
}

// Unsubscribe closes and removes the subscription registered under id.
func (b *Bridge) Unsubscribe(id string) {
	b.mu.Lock()
	subscription := b.subscribers[id]
	delete(b.subscribers, id)
	b.mu.Unlock()
	if subscription != nil {
		subscription.close()
	}
}

func (b *Bridge) remove(subscription *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[subscription.id] == subscription {
		delete(b.subscribers, subscription.id)
	}
}

// Refresh marks the whole frame damaged for every subscriber.
func (b *Bridge) Refresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subscription := range b.subscribers {
		subscription.markAll()
	}
}

// Done is closed when Run has returned.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Stats returns a snapshot of the counters and a BLAKE3 digest of the
// current frame.
func (b *Bridge) Stats() Stats {
	frame := b.current.Load()
	sourceStats := b.source.Stats()

	b.mu.Lock()
	subscribers := len(b.subscribers)
	b.mu.Unlock()

	return Stats{
		Seq:         frame.Seq,
		Width:       frame.Buffer.Width,
		Height:      frame.Buffer.Height,
		Published:   b.published.Load(),
		Unchanged:   b.unchanged.Load(),
		Resizes:     b.resizes.Load(),
		Committed:   sourceStats.Committed,
		Coalesced:   sourceStats.Coalesced,
		Subscribers: subscribers,
		Digest:      frame.Buffer.Digest().String(),
	}
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	b.closed = true
	subscribers := b.subscribers
	b.subscribers = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, subscription := range subscribers {
		subscription.close()
	}
	b.doneOnce.Do(func() { close(b.done) })
}
