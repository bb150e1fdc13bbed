package domain

import "time"

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

// Message is the canonical persisted message. MessageID and CreatedAt are
// assigned by the store and never fabricated by the relay.
type Message struct {
	MessageID   int64        `json:"messageId"`
	SenderID    int64        `json:"senderId"`
	ReceiverID  int64        `json:"receiverId"`
	Body        *string      `json:"body"`
	CreatedAt   time.Time    `json:"createdAt"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	AttachmentID int64  `json:"attachmentId,omitempty"`
	MimeType     string `json:"mimeType"`
	Data         []byte `json:"data"`
}

// PresenceRecord tracks a user's online/offline status and last-seen time.
// Owned by the registry, mutated on connect/disconnect/heartbeat events.
type PresenceRecord struct {
	UserID   int64      `json:"userId"`
	Status   UserStatus `json:"status"`
	LastSeen time.Time  `json:"lastSeen"`
}
