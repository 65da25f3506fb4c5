package client

import (
	"errors"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/protocol"
)

// Conn is the networked side of a session. ws.Client implements it.
type Conn interface {
	Send(m protocol.Message) error
	Drain(limit int) []protocol.Message
}

// Session couples a State with a connection. Frame is called once per client frame.
type Session struct {
	state *State
	conn  Conn

	// DrainLimit caps how many received messages one frame applies; 0 means all.
	DrainLimit int

	saturated int
}

func NewSession(state *State, conn Conn) *Session {
	return &Session{state: state, conn: conn}
}

func (s *Session) State() *State { return s.state }

// Saturated counts outbound messages dropped because their channel was over budget.
func (s *Session) Saturated() int { return s.saturated }

// Frame applies pending server messages, then predicts and sends dir for dt.
// It never blocks on the network.
func (s *Session) Frame(dir mgl32.Vec3, dt time.Duration) (Step, error) {
	for _, m := range s.conn.Drain(s.DrainLimit) {
		s.state.Handle(m)
	}
	st, ok := s.state.Advance(dir, dt)
	if !ok {
		return Step{}, nil
	}
	return st, s.send(st.Msg)
}

// Command applies line locally and forwards it when the server needs to see it.
func (s *Session) Command(line string) error {
	msg, forward, err := s.state.Command(line)
	if err != nil || !forward {
		return err
	}
	return s.send(msg)
}

func (s *Session) send(m protocol.Message) error {
	err := s.conn.Send(m)
	if errors.Is(err, protocol.ErrChannelSaturated) {
		s.saturated++
		return nil
	}
	return err
}
