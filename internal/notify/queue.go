package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Severity string

const (
	SeverityOK    Severity = "ok"
	SeverityError Severity = "error"
)

// DefaultTTL is how long a notification stays visible unless the push asks
// for something else.
const DefaultTTL = 4 * time.Second

type Notification struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Queue is a TTL set of user-visible messages. Notifications coexist without
// deduplication and are reported in insertion order.
type Queue struct {
	mu    sync.Mutex
	items []Notification
	ttl   time.Duration
	now   func() time.Time
}

func NewQueue(ttl time.Duration) *Queue {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Queue{ttl: ttl, now: time.Now}
}

func (q *Queue) Push(sev Severity, title, message string) string {
	return q.PushTTL(sev, title, message, q.ttl)
}

func (q *Queue) PushTTL(sev Severity, title, message string, ttl time.Duration) string {
	if ttl <= 0 {
		ttl = q.ttl
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	n := Notification{
		ID:        uuid.NewString(),
		Severity:  sev,
		Title:     title,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	q.items = append(q.items, n)
	return n.ID
}

// Dismiss removes the notification immediately, ahead of its expiry.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, n := range q.items {
		if n.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns unexpired notifications in insertion order, pruning expired
// ones as a side effect.
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(q.now())
	out := make([]Notification, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) pruneLocked(now time.Time) {
	kept := q.items[:0]
	for _, n := range q.items {
		if n.ExpiresAt.After(now) {
			kept = append(kept, n)
		}
	}
	q.items = kept
}

// Run sweeps expired notifications until ctx is done, so memory stays
// bounded even when nothing polls Active.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			q.mu.Lock()
			q.pruneLocked(q.now())
			q.mu.Unlock()
		}
	}
}
