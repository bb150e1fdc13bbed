package delivery

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/auth"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/config"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"
	redisinfra "github.com/git-krishnabisht/vaatsip-sub000/internal/infrastructure/redis"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/registry"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/relay"

	"github.com/gofiber/websocket/v2"
)

// Supervisor drives one connection's lifecycle: registration (superseding any
// prior connection for the same user), presence broadcast, heartbeat, frame
// dispatch and teardown. Identity is verified before the upgrade, so a
// connection handed to the supervisor is already authenticated.
type Supervisor struct {
	cfg   *config.Config
	reg   *registry.Registry
	relay *relay.Relay
	redis *redisinfra.RedisClient // optional presence mirror
}

func NewSupervisor(cfg *config.Config, reg *registry.Registry, rel *relay.Relay, redis *redisinfra.RedisClient) *Supervisor {
	return &Supervisor{cfg: cfg, reg: reg, relay: rel, redis: redis}
}

func (s *Supervisor) HandleConnection(c *websocket.Conn, ident *auth.Identity) {
	defer c.Close()

	ctx := context.Background()
	userID := ident.UserID

	conn := registry.NewConn(userID, c)
	conn.SetState(registry.StateOpen)

	if evicted := s.reg.Register(userID, conn); evicted != nil {
		log.Printf("User %d opened a new connection, superseding the old one", userID)
		if err := evicted.Close(registry.CloseSuperseded, "superseded"); err != nil {
			log.Printf("Error closing superseded connection for user %d: %v", userID, err)
		}
	}

	stopHeartbeat := make(chan struct{})
	announced := false
	defer func() {
		close(stopHeartbeat)
		removed := s.reg.Unregister(userID, conn)
		_ = conn.Close(websocket.CloseNormalClosure, "")

		if offlineBroadcastNeeded(removed, announced, conn.Superseded()) {
			now := time.Now()
			s.relay.BroadcastStatus(ctx, userID, domain.StatusOffline, now)
			s.mirrorPresence(ctx, userID, domain.StatusOffline, now)
		}
		log.Printf("User %d disconnected", userID)
	}()

	now := time.Now()
	s.mirrorPresence(ctx, userID, domain.StatusOnline, now)

	welcome := domain.ConnectionEstablishedFrame{
		Type:      domain.TypeConnectionEstablished,
		UserID:    userID,
		Timestamp: now,
	}
	if err := conn.SendJSON(welcome); err != nil {
		log.Printf("Failed to send welcome frame to user %d: %v", userID, err)
		return
	}

	s.relay.BroadcastStatus(ctx, userID, domain.StatusOnline, now)
	announced = true
	s.relay.SendOnlineUsers(conn)

	log.Printf("User %d connected", userID)

	c.SetPongHandler(func(string) error {
		conn.TouchPong()
		s.reg.Touch(userID)
		return nil
	})
	go s.heartbeat(conn, stopHeartbeat)

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error for user %d: %v", userID, err)
			}
			return
		}

		var frame domain.ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Malformed frames are reported, never fatal.
			s.sendError(conn, "invalid message format")
			continue
		}
		s.dispatch(ctx, conn, &frame)
	}
}

// offlineBroadcastNeeded reports whether a teardown should retract the user's
// online status. A superseded connection never broadcasts offline (the user
// is still online on the newer connection), a connection that failed before
// its online broadcast has nothing to retract, and a stale unregister means a
// newer connection owns the presence record.
func offlineBroadcastNeeded(removed, announced, superseded bool) bool {
	return removed && announced && !superseded
}

// heartbeat pings the peer at a fixed interval and forces the connection
// closed when no pong arrives for two consecutive intervals.
func (s *Supervisor) heartbeat(conn *registry.Conn, stop <-chan struct{}) {
	interval := s.cfg.HeartbeatInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if time.Since(conn.LastPong()) > 2*interval {
				log.Printf("Heartbeat timeout for user %d, closing connection", conn.UserID)
				_ = conn.Close(websocket.ClosePolicyViolation, "heartbeat timeout")
				return
			}
			if err := conn.Ping(time.Now().Add(10 * time.Second)); err != nil {
				if err != registry.ErrConnNotOpen {
					log.Printf("Heartbeat ping failed for user %d: %v", conn.UserID, err)
					_ = conn.Close(websocket.CloseAbnormalClosure, "ping failed")
				}
				return
			}
		}
	}
}

func (s *Supervisor) dispatch(ctx context.Context, conn *registry.Conn, frame *domain.ClientFrame) {
	switch frame.Type {
	case domain.TypeSendMessage:
		var body *string
		if frame.Content != "" {
			content := frame.Content
			body = &content
		}
		if _, err := s.relay.HandleSend(ctx, conn, frame.ReceiverID, body, frame.Attachments, frame.TempID); err != nil {
			log.Printf("Send from user %d rejected: %v", conn.UserID, err)
		}

	case domain.TypeMessageDelivered:
		s.relay.MarkDelivered(ctx, conn.UserID, frame.MessageID)

	case domain.TypeMessageRead:
		s.relay.MarkRead(ctx, conn.UserID, frame.MessageID)

	case domain.TypeTypingStart, domain.TypeTypingStop:
		isTyping := frame.Type == domain.TypeTypingStart
		s.relay.NotifyTyping(ctx, conn.UserID, frame.ReceiverID, isTyping)
		if s.redis != nil {
			if err := s.redis.SetTyping(ctx, conn.UserID, frame.ReceiverID, isTyping); err != nil {
				log.Printf("Failed to mirror typing state for user %d: %v", conn.UserID, err)
			}
		}

	case domain.TypeGetOnlineUsers:
		s.relay.SendOnlineUsers(conn)

	case domain.TypePing:
		conn.TouchPong()
		s.reg.Touch(conn.UserID)
		pong := domain.PongFrame{Type: domain.TypePong, Timestamp: time.Now()}
		if err := conn.SendJSON(pong); err != nil {
			log.Printf("Failed to send pong to user %d: %v", conn.UserID, err)
		}

	default:
		log.Printf("Unknown message type %q from user %d", frame.Type, conn.UserID)
		s.sendError(conn, "unknown message type: "+frame.Type)
	}
}

func (s *Supervisor) sendError(conn *registry.Conn, message string) {
	frame := domain.ErrorFrame{Type: domain.TypeError, Error: message}
	if err := conn.SendJSON(frame); err != nil {
		log.Printf("Failed to send error frame to user %d: %v", conn.UserID, err)
	}
}

func (s *Supervisor) mirrorPresence(ctx context.Context, userID int64, status domain.UserStatus, at time.Time) {
	if s.redis == nil {
		return
	}
	if err := s.redis.SetPresence(ctx, userID, status, at); err != nil {
		log.Printf("Failed to mirror presence of user %d: %v", userID, err)
	}
}
