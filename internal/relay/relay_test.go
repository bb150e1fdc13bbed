package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/registry"

	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	mu     sync.Mutex
	frames []interface{}
}

func (f *fakeSocket) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, v)
	return nil
}

func (f *fakeSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (f *fakeSocket) Close() error                              { return nil }

func (f *fakeSocket) sent() []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]interface{}, len(f.frames))
	copy(out, f.frames)
	return out
}

type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	users      map[int64]bool
	messages   map[int64]*domain.Message
	failCreate bool
}

func newFakeStore(users ...int64) *fakeStore {
	s := &fakeStore{
		users:    make(map[int64]bool),
		messages: make(map[int64]*domain.Message),
	}
	for _, u := range users {
		s.users[u] = true
	}
	return s
}

func (s *fakeStore) CreateMessage(_ context.Context, senderID, receiverID int64, body *string, attachments []domain.Attachment) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return nil, fmt.Errorf("disk full")
	}
	s.nextID++
	msg := &domain.Message{
		MessageID:   s.nextID,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
		Attachments: attachments,
	}
	s.messages[msg.MessageID] = msg
	return msg, nil
}

func (s *fakeStore) MessageByID(_ context.Context, messageID int64) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("message %d not found", messageID)
	}
	return msg, nil
}

func (s *fakeStore) UserExists(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *capturingPublisher) Publish(_ context.Context, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func connect(reg *registry.Registry, userID int64) (*registry.Conn, *fakeSocket) {
	sock := &fakeSocket{}
	conn := registry.NewConn(userID, sock)
	conn.SetState(registry.StateOpen)
	reg.Register(userID, conn)
	return conn, sock
}

func str(s string) *string { return &s }

func TestHandleSendDeliversLiveToOnlineReceiver(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1, 2)
	rel := New(store, reg, nil)

	sender, senderSock := connect(reg, 1)
	_, receiverSock := connect(reg, 2)

	delivered, err := rel.HandleSend(context.Background(), sender, 2, str("hello"), nil, "tmp-1")
	require.NoError(t, err)
	require.True(t, delivered)

	senderFrames := senderSock.sent()
	require.Len(t, senderFrames, 1)
	ack, ok := senderFrames[0].(domain.MessageSentFrame)
	require.True(t, ok)
	require.Equal(t, "tmp-1", ack.TempID)
	require.Equal(t, "hello", *ack.Message.Body)

	receiverFrames := receiverSock.sent()
	require.Len(t, receiverFrames, 1)
	push, ok := receiverFrames[0].(domain.NewMessageFrame)
	require.True(t, ok)
	require.Equal(t, ack.Message.MessageID, push.Message.MessageID)
}

func TestHandleSendToOfflineReceiverPersistsAndAcks(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1, 2)
	rel := New(store, reg, nil)

	sender, senderSock := connect(reg, 1)

	delivered, err := rel.HandleSend(context.Background(), sender, 2, str("catch up later"), nil, "tmp-2")
	require.NoError(t, err)
	require.False(t, delivered)

	frames := senderSock.sent()
	require.Len(t, frames, 1)
	ack := frames[0].(domain.MessageSentFrame)

	// Message is durable and retrievable for the receiver's next history fetch.
	msg, err := store.MessageByID(context.Background(), ack.Message.MessageID)
	require.NoError(t, err)
	require.Equal(t, int64(2), msg.ReceiverID)
}

func TestHandleSendRejectsSelfMessage(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1)
	rel := New(store, reg, nil)
	sender, senderSock := connect(reg, 1)

	_, err := rel.HandleSend(context.Background(), sender, 1, str("hi me"), nil, "tmp-3")
	requireSendError(t, err, CodeForbiddenSelfMessage, "tmp-3")
	requireErrorFrame(t, senderSock, CodeForbiddenSelfMessage, "tmp-3")
	require.Empty(t, store.messages)
}

func TestHandleSendRejectsEmptyMessage(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1, 2)
	rel := New(store, reg, nil)
	sender, senderSock := connect(reg, 1)

	_, err := rel.HandleSend(context.Background(), sender, 2, str(""), nil, "tmp-4")
	requireSendError(t, err, CodeEmptyMessage, "tmp-4")
	requireErrorFrame(t, senderSock, CodeEmptyMessage, "tmp-4")
}

func TestHandleSendRejectsUnknownReceiver(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1)
	rel := New(store, reg, nil)
	sender, senderSock := connect(reg, 1)

	_, err := rel.HandleSend(context.Background(), sender, 42, str("anyone there"), nil, "tmp-5")
	requireSendError(t, err, CodeReceiverNotFound, "tmp-5")
	requireErrorFrame(t, senderSock, CodeReceiverNotFound, "tmp-5")
}

func TestHandleSendReportsPersistFailure(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1, 2)
	store.failCreate = true
	rel := New(store, reg, nil)
	sender, senderSock := connect(reg, 1)

	_, err := rel.HandleSend(context.Background(), sender, 2, str("doomed"), nil, "tmp-6")
	requireSendError(t, err, CodeMessagePersistFailed, "tmp-6")
	requireErrorFrame(t, senderSock, CodeMessagePersistFailed, "tmp-6")
}

func TestHandleSendPublishesMessageEvent(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1, 2)
	pub := &capturingPublisher{}
	rel := New(store, reg, pub)
	sender, _ := connect(reg, 1)

	_, err := rel.HandleSend(context.Background(), sender, 2, str("hello"), nil, "tmp-7")
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	event, ok := pub.events[0].(domain.MessageEvent)
	require.True(t, ok)
	require.Equal(t, int64(1), event.SenderID)
	require.Equal(t, int64(2), event.ReceiverID)
}

func TestMarkDeliveredForwardsToOnlineSender(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1, 2)
	rel := New(store, reg, nil)
	sender, senderSock := connect(reg, 1)

	_, err := rel.HandleSend(context.Background(), sender, 2, str("read me"), nil, "tmp-8")
	require.NoError(t, err)
	ack := senderSock.sent()[0].(domain.MessageSentFrame)

	rel.MarkDelivered(context.Background(), 2, ack.Message.MessageID)

	frames := senderSock.sent()
	require.Len(t, frames, 2)
	receipt, ok := frames[1].(domain.MessageDeliveredFrame)
	require.True(t, ok)
	require.Equal(t, ack.Message.MessageID, receipt.MessageID)
	require.Equal(t, int64(2), receipt.DeliveredBy)

	// Replays are tolerated and do not corrupt anything.
	rel.MarkDelivered(context.Background(), 2, ack.Message.MessageID)
	last := senderSock.sent()
	replay := last[len(last)-1].(domain.MessageDeliveredFrame)
	require.Equal(t, receipt.MessageID, replay.MessageID)
}

func TestMarkReadDroppedWhenSenderOffline(t *testing.T) {
	reg := registry.New()
	store := newFakeStore(1, 2)
	rel := New(store, reg, nil)
	sender, senderSock := connect(reg, 1)

	_, err := rel.HandleSend(context.Background(), sender, 2, str("bye"), nil, "tmp-9")
	require.NoError(t, err)
	ack := senderSock.sent()[0].(domain.MessageSentFrame)
	reg.Unregister(1, sender)

	rel.MarkRead(context.Background(), 2, ack.Message.MessageID)
	require.Len(t, senderSock.sent(), 1)
}

func TestMarkDeliveredIgnoresUnknownMessage(t *testing.T) {
	reg := registry.New()
	rel := New(newFakeStore(1), reg, nil)
	_, sock := connect(reg, 1)

	rel.MarkDelivered(context.Background(), 2, 999)
	require.Empty(t, sock.sent())
}

func TestNotifyTypingForwardsOnlyWhenReceiverOnline(t *testing.T) {
	reg := registry.New()
	rel := New(newFakeStore(1, 2), reg, nil)
	_, receiverSock := connect(reg, 2)

	rel.NotifyTyping(context.Background(), 1, 2, true)
	frames := receiverSock.sent()
	require.Len(t, frames, 1)
	typing := frames[0].(domain.UserTypingFrame)
	require.Equal(t, int64(1), typing.UserID)
	require.True(t, typing.IsTyping)

	rel.NotifyTyping(context.Background(), 1, 3, true) // offline, dropped
	require.Len(t, receiverSock.sent(), 1)
}

func TestBroadcastStatusReachesAllPeersExceptSubject(t *testing.T) {
	reg := registry.New()
	rel := New(newFakeStore(1, 2, 3), reg, nil)
	_, sock1 := connect(reg, 1)
	_, sock2 := connect(reg, 2)
	_, sock3 := connect(reg, 3)

	rel.BroadcastStatus(context.Background(), 2, domain.StatusOffline, time.Now())

	require.Empty(t, sock2.sent())
	for _, sock := range []*fakeSocket{sock1, sock3} {
		frames := sock.sent()
		require.Len(t, frames, 1)
		status := frames[0].(domain.UserStatusChangedFrame)
		require.Equal(t, int64(2), status.UserID)
		require.Equal(t, domain.StatusOffline, status.Status)
	}
}

func TestSendOnlineUsersSnapshot(t *testing.T) {
	reg := registry.New()
	rel := New(newFakeStore(1, 2), reg, nil)
	conn1, sock1 := connect(reg, 1)
	connect(reg, 2)

	rel.SendOnlineUsers(conn1)

	frames := sock1.sent()
	require.Len(t, frames, 1)
	snapshot := frames[0].(domain.OnlineUsersFrame)
	require.Len(t, snapshot.Users, 2)
}

func requireSendError(t *testing.T, err error, code, tempID string) {
	t.Helper()
	var sendErr *SendError
	require.True(t, errors.As(err, &sendErr))
	require.Equal(t, code, sendErr.Code)
	require.Equal(t, tempID, sendErr.TempID)
}

func requireErrorFrame(t *testing.T, sock *fakeSocket, code, tempID string) {
	t.Helper()
	frames := sock.sent()
	require.Len(t, frames, 1)
	frame, ok := frames[0].(domain.MessageErrorFrame)
	require.True(t, ok)
	require.Equal(t, code, frame.Error)
	require.Equal(t, tempID, frame.TempID)
}
