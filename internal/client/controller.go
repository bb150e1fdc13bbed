package client

import (
	"encoding/json"
	"errors"
	"log"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected  = errors.New("client: connection is not open")
	ErrClosed        = errors.New("client: controller closed")
	ErrUnknownTempID = errors.New("client: unknown temp id")
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Close codes that mean the closure was intentional; the controller does not
// reconnect after these.
var cleanCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
	3000,
	4000, // superseded by a newer connection for the same user
}

type Options struct {
	URL   string
	Token string

	InitialBackoff    time.Duration // default 1s
	BackoffFactor     float64       // default 1.5
	MaxBackoff        time.Duration // default 10s
	MaxAttempts       int           // default 5
	HeartbeatInterval time.Duration // default 30s
	TypingQuiet       time.Duration // default 3s
}

func (o *Options) applyDefaults() {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = time.Second
	}
	if o.BackoffFactor <= 1 {
		o.BackoffFactor = 1.5
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.TypingQuiet <= 0 {
		o.TypingQuiet = 3 * time.Second
	}
}

// Handlers receive server events. All are optional and invoked from the read
// loop goroutine.
type Handlers struct {
	OnNewMessage       func(msg *domain.Message)
	OnMessageSent      func(tempID string, msg *domain.Message)
	OnMessageError     func(tempID string, errMsg string)
	OnMessageDelivered func(messageID, deliveredBy int64)
	OnMessageRead      func(messageID, readBy int64)
	OnTyping           func(userID int64, isTyping bool)
	OnOnlineUsers      func(users []domain.PresenceRecord)
	OnUserStatus       func(userID int64, status domain.UserStatus, lastSeen time.Time)
	OnStatusChange     func(status Status)
}

// Controller owns the client side of the wire protocol: it establishes the
// connection, retries with bounded exponential backoff on abnormal closure,
// runs the heartbeat, and replays presence state after a reconnect.
// Reconnection attempts never overlap; an intentional Close cancels any
// scheduled retry.
type Controller struct {
	opts     Options
	handlers Handlers
	tracker  *SendTracker
	typing   *typingState

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	status     Status
	attempts   int
	retryTimer *time.Timer
	stopHB     chan struct{}
	dialing    bool
	closed     bool
}

func New(opts Options, handlers Handlers) *Controller {
	opts.applyDefaults()
	c := &Controller{
		opts:     opts,
		handlers: handlers,
		tracker:  NewSendTracker(),
		status:   StatusDisconnected,
	}
	c.typing = newTypingState(opts.TypingQuiet, handlers.OnTyping)
	return c
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) Tracker() *SendTracker { return c.tracker }

// IsTyping reports whether the peer currently shows as typing; indicators
// auto-expire after the quiet window even if the stop event was lost.
func (c *Controller) IsTyping(userID int64) bool { return c.typing.isTyping(userID) }

// Connect establishes the connection. A fresh Connect re-arms reconnection
// after a previous Close or terminal error.
func (c *Controller) Connect() error {
	c.mu.Lock()
	c.closed = false
	c.attempts = 0
	c.mu.Unlock()
	return c.dial()
}

// Close is the intentional, user-initiated disconnect. It cancels any
// scheduled reconnect and suppresses further attempts until the next Connect.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
	conn := c.conn
	c.conn = nil
	if c.stopHB != nil {
		close(c.stopHB)
		c.stopHB = nil
	}
	c.status = StatusDisconnected
	c.mu.Unlock()

	c.typing.stopAll()
	c.notifyStatus(StatusDisconnected)

	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing"))
	c.writeMu.Unlock()
	return conn.Close()
}

// SendMessage records an optimistic pending send and transmits it. The
// returned tempId identifies the pending entry; when the connection is not
// open the entry is immediately marked failed and an error returned.
func (c *Controller) SendMessage(receiverID int64, content string) (string, error) {
	pending := c.tracker.Add(receiverID, content)
	frame := domain.ClientFrame{
		Type:       domain.TypeSendMessage,
		ReceiverID: receiverID,
		Content:    content,
		TempID:     pending.TempID,
	}
	if err := c.writeJSON(frame); err != nil {
		c.tracker.Fail(pending.TempID, "connection not open")
		return pending.TempID, err
	}
	return pending.TempID, nil
}

// Retry re-submits a previously failed pending send under its original
// tempId.
func (c *Controller) Retry(tempID string) error {
	draft, ok := c.tracker.Reset(tempID)
	if !ok {
		return ErrUnknownTempID
	}
	frame := domain.ClientFrame{
		Type:       domain.TypeSendMessage,
		ReceiverID: draft.ReceiverID,
		Content:    draft.Body,
		TempID:     draft.TempID,
	}
	if err := c.writeJSON(frame); err != nil {
		c.tracker.Fail(tempID, "connection not open")
		return err
	}
	return nil
}

func (c *Controller) TypingStart(receiverID int64) error {
	return c.writeJSON(domain.ClientFrame{Type: domain.TypeTypingStart, ReceiverID: receiverID})
}

func (c *Controller) TypingStop(receiverID int64) error {
	return c.writeJSON(domain.ClientFrame{Type: domain.TypeTypingStop, ReceiverID: receiverID})
}

func (c *Controller) MarkRead(messageID int64) error {
	return c.writeJSON(domain.ClientFrame{Type: domain.TypeMessageRead, MessageID: messageID})
}

func (c *Controller) RequestOnlineUsers() error {
	return c.writeJSON(domain.ClientFrame{Type: domain.TypeGetOnlineUsers})
}

func (c *Controller) dial() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.dialing || c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.status = StatusConnecting
	c.mu.Unlock()
	c.notifyStatus(StatusConnecting)

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)

	c.mu.Lock()
	c.dialing = false
	if err != nil {
		log.Printf("Connection attempt failed: %v", err)
		st := c.scheduleRetryLocked()
		c.mu.Unlock()
		c.notifyStatus(st)
		return err
	}
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.status = StatusConnected
	c.attempts = 0
	stop := make(chan struct{})
	c.stopHB = stop
	c.mu.Unlock()
	c.notifyStatus(StatusConnected)

	go c.readLoop(conn)
	go c.heartbeat(stop)

	// Cached presence state does not survive the gap; always ask again.
	if err := c.RequestOnlineUsers(); err != nil {
		log.Printf("Failed to request online users: %v", err)
	}
	return nil
}

func (c *Controller) wsURL() string {
	if c.opts.Token == "" {
		return c.opts.URL
	}
	u, err := url.Parse(c.opts.URL)
	if err != nil {
		return c.opts.URL
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Controller) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}
		var frame domain.ServerFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Printf("Failed to decode server frame: %v", err)
			continue
		}
		c.handleFrame(&frame)
	}
}

func (c *Controller) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop from a connection already replaced or closed.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.stopHB != nil {
		close(c.stopHB)
		c.stopHB = nil
	}
	conn.Close()

	if c.closed || websocket.IsCloseError(err, cleanCloseCodes...) {
		c.status = StatusDisconnected
		c.mu.Unlock()
		c.notifyStatus(StatusDisconnected)
		return
	}

	log.Printf("Connection lost: %v", err)
	st := c.scheduleRetryLocked()
	c.mu.Unlock()
	c.notifyStatus(st)
}

// scheduleRetryLocked books the next reconnection attempt, or reports a
// terminal error once the attempt budget is spent. Caller holds the lock.
func (c *Controller) scheduleRetryLocked() Status {
	if c.closed {
		c.status = StatusDisconnected
		return c.status
	}
	if c.attempts >= c.opts.MaxAttempts {
		c.status = StatusError
		return c.status
	}
	c.attempts++
	c.status = StatusConnecting
	delay := c.backoffDelay(c.attempts)
	log.Printf("Scheduling reconnection attempt %d/%d in %s", c.attempts, c.opts.MaxAttempts, delay)
	c.retryTimer = time.AfterFunc(delay, func() { _ = c.dial() })
	return c.status
}

// backoffDelay grows geometrically with the attempt number, capped at
// MaxBackoff. Attempt numbering starts at 1.
func (c *Controller) backoffDelay(attempt int) time.Duration {
	d := float64(c.opts.InitialBackoff) * math.Pow(c.opts.BackoffFactor, float64(attempt-1))
	if d > float64(c.opts.MaxBackoff) {
		return c.opts.MaxBackoff
	}
	return time.Duration(d)
}

func (c *Controller) heartbeat(stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.writeJSON(domain.ClientFrame{Type: domain.TypePing}); err != nil {
				return
			}
		}
	}
}

func (c *Controller) writeJSON(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (c *Controller) handleFrame(frame *domain.ServerFrame) {
	switch frame.Type {
	case domain.TypeConnectionEstablished:
		c.tracker.SetSelf(frame.UserID)

	case domain.TypeNewMessage:
		if frame.Message == nil {
			return
		}
		if !c.tracker.Ingest(frame.Message) {
			return
		}
		if c.handlers.OnNewMessage != nil {
			c.handlers.OnNewMessage(frame.Message)
		}
		// Acknowledge delivery right away so the sender sees the receipt.
		if err := c.writeJSON(domain.ClientFrame{
			Type:      domain.TypeMessageDelivered,
			MessageID: frame.Message.MessageID,
		}); err != nil {
			log.Printf("Failed to send delivery receipt for message %d: %v", frame.Message.MessageID, err)
		}

	case domain.TypeMessageSent:
		if frame.Message == nil {
			return
		}
		if c.tracker.Ack(frame.TempID, frame.Message) && c.handlers.OnMessageSent != nil {
			c.handlers.OnMessageSent(frame.TempID, frame.Message)
		}

	case domain.TypeMessageError:
		c.tracker.Fail(frame.TempID, frame.Error)
		if c.handlers.OnMessageError != nil {
			c.handlers.OnMessageError(frame.TempID, frame.Error)
		}

	case domain.TypeMessageDelivered:
		if c.handlers.OnMessageDelivered != nil {
			c.handlers.OnMessageDelivered(frame.MessageID, frame.DeliveredBy)
		}

	case domain.TypeMessageRead:
		if c.handlers.OnMessageRead != nil {
			c.handlers.OnMessageRead(frame.MessageID, frame.ReadBy)
		}

	case domain.TypeUserTyping:
		c.typing.set(frame.UserID, frame.IsTyping)

	case domain.TypeUserStatusChanged:
		if c.handlers.OnUserStatus != nil {
			c.handlers.OnUserStatus(frame.UserID, frame.Status, frame.LastSeen)
		}

	case domain.TypeOnlineUsers:
		if c.handlers.OnOnlineUsers != nil {
			c.handlers.OnOnlineUsers(frame.Users)
		}

	case domain.TypePong:
		// Heartbeat answered; nothing to do.

	case domain.TypeError:
		log.Printf("Server error: %s", frame.Error)

	default:
		log.Printf("Unknown server frame type: %s", frame.Type)
	}
}

func (c *Controller) notifyStatus(status Status) {
	if c.handlers.OnStatusChange != nil {
		c.handlers.OnStatusChange(status)
	}
}
