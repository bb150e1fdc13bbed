package domain

import "time"

// Frame type discriminators, client to server.
const (
	TypeSendMessage      = "send_message"
	TypeTypingStart      = "typing_start"
	TypeTypingStop       = "typing_stop"
	TypeMessageDelivered = "message_delivered"
	TypeMessageRead      = "message_read"
	TypeGetOnlineUsers   = "get_online_users"
	TypePing             = "ping"
)

// Frame type discriminators, server to client.
const (
	TypeConnectionEstablished = "connection_established"
	TypeNewMessage            = "new_message"
	TypeMessageSent           = "message_sent"
	TypeUserTyping            = "user_typing"
	TypeUserStatusChanged     = "user_status_changed"
	TypeOnlineUsers           = "online_users"
	TypeMessageError          = "message_error"
	TypeError                 = "error"
	TypePong                  = "pong"
)

// ClientFrame is the single decode target for inbound frames; the type
// discriminator decides which fields are meaningful.
type ClientFrame struct {
	Type        string       `json:"type"`
	ReceiverID  int64        `json:"receiverId,omitempty"`
	Content     string       `json:"content,omitempty"`
	TempID      string       `json:"tempId,omitempty"`
	MessageID   int64        `json:"messageId,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type ConnectionEstablishedFrame struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessageFrame struct {
	Type      string    `json:"type"`
	Message   *Message  `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageSentFrame struct {
	Type      string    `json:"type"`
	TempID    string    `json:"tempId"`
	Message   *Message  `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type MessageDeliveredFrame struct {
	Type        string    `json:"type"`
	MessageID   int64     `json:"messageId"`
	DeliveredBy int64     `json:"deliveredBy"`
	Timestamp   time.Time `json:"timestamp"`
}

type MessageReadFrame struct {
	Type      string    `json:"type"`
	MessageID int64     `json:"messageId"`
	ReadBy    int64     `json:"readBy"`
	Timestamp time.Time `json:"timestamp"`
}

type UserTypingFrame struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"userId"`
	IsTyping  bool      `json:"isTyping"`
	Timestamp time.Time `json:"timestamp"`
}

type UserStatusChangedFrame struct {
	Type     string     `json:"type"`
	UserID   int64      `json:"userId"`
	Status   UserStatus `json:"status"`
	LastSeen time.Time  `json:"lastSeen"`
}

type OnlineUsersFrame struct {
	Type      string           `json:"type"`
	Users     []PresenceRecord `json:"users"`
	Timestamp time.Time        `json:"timestamp"`
}

type MessageErrorFrame struct {
	Type   string `json:"type"`
	TempID string `json:"tempId"`
	Error  string `json:"error"`
}

type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type PongFrame struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerFrame is the client-side decode target for outbound frames; as with
// ClientFrame, the discriminator decides which fields carry data.
type ServerFrame struct {
	Type        string           `json:"type"`
	UserID      int64            `json:"userId,omitempty"`
	Message     *Message         `json:"message,omitempty"`
	TempID      string           `json:"tempId,omitempty"`
	MessageID   int64            `json:"messageId,omitempty"`
	DeliveredBy int64            `json:"deliveredBy,omitempty"`
	ReadBy      int64            `json:"readBy,omitempty"`
	IsTyping    bool             `json:"isTyping,omitempty"`
	Status      UserStatus       `json:"status,omitempty"`
	LastSeen    time.Time        `json:"lastSeen,omitempty"`
	Users       []PresenceRecord `json:"users,omitempty"`
	Error       string           `json:"error,omitempty"`
	Timestamp   time.Time        `json:"timestamp,omitempty"`
}
