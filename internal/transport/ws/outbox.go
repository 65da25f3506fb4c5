package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"voxels.dev/internal/protocol"
)

// flushGranularity is how often delayed channels are checked for due frames.
const flushGranularity = 10 * time.Millisecond

type outQueue struct {
	frames    [][]byte
	bytes     int
	lastFlush time.Time
}

// Outbox buffers outbound frames per channel. Send never blocks: a channel whose queued bytes
// would exceed MaxMemoryBytes rejects the frame with protocol.ErrChannelSaturated.
// Channels with a ResendDelay are flushed at most once per delay; the others on every wakeup.
type Outbox struct {
	chans   protocol.ChannelSet
	limiter *rate.Limiter

	mu     sync.Mutex
	queues [protocol.NumChannels]outQueue
	closed bool

	notify    chan struct{}
	saturated atomic.Uint64
	written   atomic.Uint64
}

// NewOutbox paces writes to bytesPerSecond; 0 disables pacing.
func NewOutbox(chans protocol.ChannelSet, bytesPerSecond int) *Outbox {
	lim := rate.NewLimiter(rate.Inf, 0)
	if bytesPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond)
	}
	return &Outbox{
		chans:   chans,
		limiter: lim,
		notify:  make(chan struct{}, 1),
	}
}

func (o *Outbox) Send(f protocol.Frame) error {
	if !f.Channel.Valid() {
		return protocol.ErrMalformed
	}
	b := f.Encode()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	q := &o.queues[f.Channel]
	if budget := o.chans[f.Channel].MaxMemoryBytes; budget > 0 && q.bytes+len(b) > budget {
		o.mu.Unlock()
		o.saturated.Add(1)
		return protocol.ErrChannelSaturated
	}
	q.frames = append(q.frames, b)
	q.bytes += len(b)
	o.mu.Unlock()

	select {
	case o.notify <- struct{}{}:
	default:
	}
	return nil
}

// Queued returns the bytes waiting on channel c.
func (o *Outbox) Queued(c protocol.Channel) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queues[c].bytes
}

func (o *Outbox) Saturated() uint64 { return o.saturated.Load() }
func (o *Outbox) Written() uint64   { return o.written.Load() }

// take removes every due frame, lowest channel id first. force ignores resend delays.
func (o *Outbox) take(now time.Time, force bool) [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out [][]byte
	for c := range o.queues {
		q := &o.queues[c]
		if len(q.frames) == 0 {
			continue
		}
		if delay := o.chans[c].ResendDelay; !force && delay > 0 && now.Sub(q.lastFlush) < delay {
			continue
		}
		out = append(out, q.frames...)
		q.frames = nil
		q.bytes = 0
		q.lastFlush = now
	}
	return out
}

// Close stops accepting frames. Frames already queued are discarded.
func (o *Outbox) Close() {
	o.mu.Lock()
	o.closed = true
	for c := range o.queues {
		o.queues[c] = outQueue{}
	}
	o.mu.Unlock()
}

// Run writes due frames through write until ctx is done or write fails.
func (o *Outbox) Run(ctx context.Context, write func([]byte) error) error {
	ticker := time.NewTicker(flushGranularity)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.notify:
		case <-ticker.C:
		}
		for _, b := range o.take(time.Now(), false) {
			if err := o.wait(ctx, len(b)); err != nil {
				return err
			}
			if err := write(b); err != nil {
				return err
			}
			o.written.Add(uint64(len(b)))
		}
	}
}

func (o *Outbox) wait(ctx context.Context, n int) error {
	if o.limiter.Limit() == rate.Inf {
		return nil
	}
	if burst := o.limiter.Burst(); n > burst {
		n = burst
	}
	return o.limiter.WaitN(ctx, n)
}
