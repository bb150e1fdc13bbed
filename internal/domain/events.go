package domain

import "time"

// Events published to the broker for downstream services. Publishing is
// best-effort; the live relay path never waits on it.

type MessageEvent struct {
	Type       string    `json:"type"`
	MessageID  int64     `json:"message_id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"`
}

type PresenceEvent struct {
	Type     string     `json:"type"`
	UserID   int64      `json:"user_id"`
	Status   UserStatus `json:"status"`
	LastSeen time.Time  `json:"last_seen"`
}

type TypingEvent struct {
	Type       string    `json:"type"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	IsTyping   bool      `json:"is_typing"`
	Timestamp  time.Time `json:"timestamp"`
}
