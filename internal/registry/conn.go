package registry

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
)

// Close code sent to a connection replaced by a newer one for the same user.
// Clients treat it as an intentional close and do not reconnect.
const CloseSuperseded = 4000

var ErrConnNotOpen = errors.New("registry: connection is not open")

type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

// Socket is the slice of the websocket connection the registry needs. The
// supervisor passes the real *websocket.Conn; tests pass a fake.
type Socket interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// Conn wraps a live socket for one user. The write mutex prevents concurrent
// writes to the underlying connection; relay and heartbeat paths share it.
type Conn struct {
	UserID int64

	sock       Socket
	writeMu    sync.Mutex
	state      atomic.Int32
	lastPong   atomic.Int64
	superseded atomic.Bool
}

func NewConn(userID int64, sock Socket) *Conn {
	c := &Conn{UserID: userID, sock: sock}
	c.state.Store(int32(StateConnecting))
	c.lastPong.Store(time.Now().UnixNano())
	return c
}

func (c *Conn) State() State        { return State(c.state.Load()) }
func (c *Conn) SetState(s State)    { c.state.Store(int32(s)) }
func (c *Conn) TouchPong()          { c.lastPong.Store(time.Now().UnixNano()) }
func (c *Conn) LastPong() time.Time { return time.Unix(0, c.lastPong.Load()) }
func (c *Conn) MarkSuperseded()     { c.superseded.Store(true) }
func (c *Conn) Superseded() bool    { return c.superseded.Load() }

// SendJSON writes a frame to the peer. Writes are serialized per connection.
func (c *Conn) SendJSON(v interface{}) error {
	if c.State() != StateOpen {
		return ErrConnNotOpen
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteJSON(v)
}

// Ping emits a transport-level ping control frame.
func (c *Conn) Ping(deadline time.Time) error {
	if c.State() != StateOpen {
		return ErrConnNotOpen
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.WriteControl(websocket.PingMessage, nil, deadline)
}

// Close sends a close frame with the given code and reason, then tears down
// the socket. Safe to call from any state; only the first call transitions.
func (c *Conn) Close(code int, reason string) error {
	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) &&
		!c.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	payload := websocket.FormatCloseMessage(code, reason)
	_ = c.sock.WriteControl(websocket.CloseMessage, payload, time.Now().Add(5*time.Second))
	err := c.sock.Close()
	c.state.Store(int32(StateClosed))
	return err
}
