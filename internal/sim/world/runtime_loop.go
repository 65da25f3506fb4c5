package world

import (
	"context"
	"time"
)

func (w *World) Inbox() chan<- Envelope   { return w.inbox }
func (w *World) Join() chan<- JoinRequest { return w.join }
func (w *World) Leave() chan<- uint64     { return w.leave }

// Done is closed once Run has returned. Senders select on it so they never block on a stopped loop.
func (w *World) Done() <-chan struct{} { return w.done }

func (w *World) Run(ctx context.Context) error {
	defer w.ended.Do(func() { close(w.done) })
	ticker := time.NewTicker(w.TickDelta())
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []uint64
	var pendingInbox []Envelope

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingInbox = append(pendingInbox, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingInbox)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInbox = pendingInbox[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering as the server loop.
// It is intended for tests and must not be called while Run is active.
func (w *World) StepOnce(joins []JoinRequest, leaves []uint64, inbox []Envelope) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, inbox)
	return tick
}
