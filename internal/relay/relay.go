package relay

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/registry"
)

// MessageStore is the persistence collaborator. It is the sole source of
// message ids and creation timestamps.
type MessageStore interface {
	CreateMessage(ctx context.Context, senderID, receiverID int64, body *string, attachments []domain.Attachment) (*domain.Message, error)
	MessageByID(ctx context.Context, messageID int64) (*domain.Message, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// EventPublisher fans events out to downstream services. Best-effort: a
// publish failure is logged and never affects the live delivery path.
type EventPublisher interface {
	Publish(ctx context.Context, event interface{}) error
}

// Relay validates, persists and forwards chat traffic between connected
// peers. Receipts and typing signals are fire-and-forget with no durability
// beyond the live session.
type Relay struct {
	store  MessageStore
	reg    *registry.Registry
	events EventPublisher
}

func New(store MessageStore, reg *registry.Registry, events EventPublisher) *Relay {
	return &Relay{store: store, reg: reg, events: events}
}

// HandleSend persists a message and forwards it. The acknowledgement to the
// sender and the push to the receiver are independent sends; either may fail
// without affecting the other. Reports whether the receiver got a live push.
func (r *Relay) HandleSend(ctx context.Context, sender *registry.Conn, receiverID int64, body *string, attachments []domain.Attachment, tempID string) (deliveredLive bool, err error) {
	senderID := sender.UserID

	if receiverID == senderID {
		return false, r.sendError(sender, tempID, CodeForbiddenSelfMessage)
	}
	if (body == nil || *body == "") && len(attachments) == 0 {
		return false, r.sendError(sender, tempID, CodeEmptyMessage)
	}
	if exists, err := r.store.UserExists(ctx, receiverID); err == nil && !exists {
		return false, r.sendError(sender, tempID, CodeReceiverNotFound)
	}

	msg, err := r.store.CreateMessage(ctx, senderID, receiverID, body, attachments)
	if err != nil {
		log.Printf("Failed to persist message from %d to %d: %v", senderID, receiverID, err)
		return false, r.sendError(sender, tempID, CodeMessagePersistFailed)
	}

	now := time.Now()
	ack := domain.MessageSentFrame{
		Type:      domain.TypeMessageSent,
		TempID:    tempID,
		Message:   msg,
		Timestamp: now,
	}
	if err := sender.SendJSON(ack); err != nil {
		log.Printf("Failed to ack message %d to sender %d: %v", msg.MessageID, senderID, err)
	}

	if receiver := r.reg.Route(receiverID); receiver != nil {
		push := domain.NewMessageFrame{
			Type:      domain.TypeNewMessage,
			Message:   msg,
			Timestamp: now,
		}
		if err := receiver.SendJSON(push); err != nil {
			log.Printf("Failed to push message %d to receiver %d: %v", msg.MessageID, receiverID, err)
		} else {
			deliveredLive = true
		}
	}

	r.publish(ctx, domain.MessageEvent{
		Type:       "message_persisted",
		MessageID:  msg.MessageID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		CreatedAt:  msg.CreatedAt,
	})
	return deliveredLive, nil
}

// MarkDelivered forwards a delivery receipt to the message's original sender
// if that sender is online. Receipts are best-effort: an offline sender or a
// lookup failure degrades to a no-op.
func (r *Relay) MarkDelivered(ctx context.Context, by int64, messageID int64) {
	msg, err := r.store.MessageByID(ctx, messageID)
	if err != nil {
		log.Printf("Delivery receipt for unknown message %d from %d: %v", messageID, by, err)
		return
	}
	sender := r.reg.Route(msg.SenderID)
	if sender == nil {
		return
	}
	frame := domain.MessageDeliveredFrame{
		Type:        domain.TypeMessageDelivered,
		MessageID:   messageID,
		DeliveredBy: by,
		Timestamp:   time.Now(),
	}
	if err := sender.SendJSON(frame); err != nil {
		log.Printf("Failed to forward delivery receipt for message %d: %v", messageID, err)
	}
}

// MarkRead forwards a read receipt; same semantics as MarkDelivered.
func (r *Relay) MarkRead(ctx context.Context, by int64, messageID int64) {
	msg, err := r.store.MessageByID(ctx, messageID)
	if err != nil {
		log.Printf("Read receipt for unknown message %d from %d: %v", messageID, by, err)
		return
	}
	sender := r.reg.Route(msg.SenderID)
	if sender == nil {
		return
	}
	frame := domain.MessageReadFrame{
		Type:      domain.TypeMessageRead,
		MessageID: messageID,
		ReadBy:    by,
		Timestamp: time.Now(),
	}
	if err := sender.SendJSON(frame); err != nil {
		log.Printf("Failed to forward read receipt for message %d: %v", messageID, err)
	}
}

// NotifyTyping forwards an ephemeral typing signal to the receiver if online;
// otherwise it is dropped silently. Never persisted, never retried.
func (r *Relay) NotifyTyping(ctx context.Context, senderID, receiverID int64, isTyping bool) {
	now := time.Now()
	if receiver := r.reg.Route(receiverID); receiver != nil {
		frame := domain.UserTypingFrame{
			Type:      domain.TypeUserTyping,
			UserID:    senderID,
			IsTyping:  isTyping,
			Timestamp: now,
		}
		if err := receiver.SendJSON(frame); err != nil {
			log.Printf("Failed to forward typing signal from %d to %d: %v", senderID, receiverID, err)
		}
	}

	r.publish(ctx, domain.TypingEvent{
		Type:       "typing_indicator",
		SenderID:   senderID,
		ReceiverID: receiverID,
		IsTyping:   isTyping,
		Timestamp:  now,
	})
}

// BroadcastStatus informs every other connected peer of a status change.
func (r *Relay) BroadcastStatus(ctx context.Context, userID int64, status domain.UserStatus, lastSeen time.Time) {
	frame := domain.UserStatusChangedFrame{
		Type:     domain.TypeUserStatusChanged,
		UserID:   userID,
		Status:   status,
		LastSeen: lastSeen,
	}

	peers := r.reg.Peers(userID)
	var wg sync.WaitGroup
	for _, peer := range peers {
		wg.Add(1)
		go func(c *registry.Conn) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					log.Printf("Recovered from panic broadcasting status to user %d: %v", c.UserID, rec)
				}
			}()
			if err := c.SendJSON(frame); err != nil {
				log.Printf("Failed to broadcast status of %d to %d: %v", userID, c.UserID, err)
			}
		}(peer)
	}
	wg.Wait()

	r.publish(ctx, domain.PresenceEvent{
		Type:     "presence_changed",
		UserID:   userID,
		Status:   status,
		LastSeen: lastSeen,
	})
}

// SendOnlineUsers pushes a snapshot of all online users to one connection.
func (r *Relay) SendOnlineUsers(conn *registry.Conn) {
	frame := domain.OnlineUsersFrame{
		Type:      domain.TypeOnlineUsers,
		Users:     r.reg.Snapshot(),
		Timestamp: time.Now(),
	}
	if err := conn.SendJSON(frame); err != nil {
		log.Printf("Failed to send online users to %d: %v", conn.UserID, err)
	}
}

func (r *Relay) sendError(sender *registry.Conn, tempID, code string) error {
	frame := domain.MessageErrorFrame{
		Type:   domain.TypeMessageError,
		TempID: tempID,
		Error:  code,
	}
	if err := sender.SendJSON(frame); err != nil {
		log.Printf("Failed to report %s to sender %d: %v", code, sender.UserID, err)
	}
	return &SendError{Code: code, TempID: tempID}
}

func (r *Relay) publish(ctx context.Context, event interface{}) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, event); err != nil {
		log.Printf("Failed to publish event: %v", err)
	}
}
