package client

import (
	"sort"
	"sync"
	"time"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/domain"

	"github.com/google/uuid"
)

// Tolerance window for the fallback de-duplication heuristic: a message from
// self matching a pending draft within this window is that draft arriving
// through another path before its acknowledgement.
const dedupeWindow = 5 * time.Second

type PendingState string

const (
	PendingStatePending      PendingState = "pending"
	PendingStateAcknowledged PendingState = "acknowledged"
	PendingStateFailed       PendingState = "failed"
)

// PendingSend is an optimistic outgoing message: rendered immediately under
// a client-generated tempId and reconciled with the canonical message once
// the acknowledgement arrives, or marked failed so it can be retried or
// discarded. It never stays ambiguously in flight.
type PendingSend struct {
	TempID     string
	ReceiverID int64
	Body       string
	State      PendingState
	Error      string
	CreatedAt  time.Time
}

// SendTracker owns the visible message list of one client session: canonical
// messages ordered by creation time plus the pending sends awaiting
// resolution. Live pushes, acknowledgements and history fetches can race, so
// every ingest path de-duplicates.
type SendTracker struct {
	mu       sync.Mutex
	selfID   int64
	pending  map[string]*PendingSend
	messages []domain.Message
	seen     map[int64]struct{}
}

func NewSendTracker() *SendTracker {
	return &SendTracker{
		pending: make(map[string]*PendingSend),
		seen:    make(map[int64]struct{}),
	}
}

// SetSelf records the authenticated user id, used by the heuristic matcher.
func (t *SendTracker) SetSelf(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selfID = userID
}

// Add creates a pending send with a fresh collision-resistant tempId.
func (t *SendTracker) Add(receiverID int64, body string) PendingSend {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &PendingSend{
		TempID:     uuid.NewString(),
		ReceiverID: receiverID,
		Body:       body,
		State:      PendingStatePending,
		CreatedAt:  time.Now(),
	}
	t.pending[p.TempID] = p
	return *p
}

// Ack resolves the pending send for tempId with its canonical message and
// inserts the message into the list. Idempotent: only the first call for a
// tempId reports a reconciliation, and the message is never duplicated.
func (t *SendTracker) Ack(tempID string, msg *domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, reconciled := t.pending[tempID]
	delete(t.pending, tempID)
	t.ingestLocked(msg)
	return reconciled
}

// Fail marks the pending send failed so the caller can surface a retry
// affordance. Reports whether a pending entry was found.
func (t *SendTracker) Fail(tempID, errMsg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[tempID]
	if !ok {
		return false
	}
	p.State = PendingStateFailed
	p.Error = errMsg
	return true
}

// Reset flips a failed pending send back to pending for a retry and returns
// the draft to re-submit.
func (t *SendTracker) Reset(tempID string) (PendingSend, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.pending[tempID]
	if !ok || p.State != PendingStateFailed {
		return PendingSend{}, false
	}
	p.State = PendingStatePending
	p.Error = ""
	return *p, true
}

// Discard drops a failed pending send the user chose not to retry.
func (t *SendTracker) Discard(tempID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, tempID)
}

// Ingest adds a canonical message to the list, de-duplicating against both
// already-seen message ids and matching pending drafts. Reports whether the
// message was new.
func (t *SendTracker) Ingest(msg *domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ingestLocked(msg)
}

// MergeHistory ingests a history fetch; returns how many messages were new.
func (t *SendTracker) MergeHistory(msgs []domain.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := 0
	for i := range msgs {
		if t.ingestLocked(&msgs[i]) {
			added++
		}
	}
	return added
}

func (t *SendTracker) ingestLocked(msg *domain.Message) bool {
	if _, dup := t.seen[msg.MessageID]; dup {
		return false
	}

	// Heuristic reconciliation: an own message arriving before its ack
	// resolves the matching draft instead of duplicating it.
	if msg.SenderID == t.selfID {
		for tempID, p := range t.pending {
			if p.State == PendingStateFailed || p.ReceiverID != msg.ReceiverID {
				continue
			}
			if msg.Body == nil || *msg.Body != p.Body {
				continue
			}
			if delta := msg.CreatedAt.Sub(p.CreatedAt); delta > dedupeWindow || delta < -dedupeWindow {
				continue
			}
			delete(t.pending, tempID)
			break
		}
	}

	t.seen[msg.MessageID] = struct{}{}
	idx := sort.Search(len(t.messages), func(i int) bool {
		if t.messages[i].CreatedAt.Equal(msg.CreatedAt) {
			return t.messages[i].MessageID > msg.MessageID
		}
		return t.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	t.messages = append(t.messages, domain.Message{})
	copy(t.messages[idx+1:], t.messages[idx:])
	t.messages[idx] = *msg
	return true
}

// Messages returns the canonical list in display order.
func (t *SendTracker) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Pending returns the unresolved sends, oldest first.
func (t *SendTracker) Pending() []PendingSend {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PendingSend, 0, len(t.pending))
	for _, p := range t.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
