// Package ledger tracks the delivery status of every (sender, recipient) pair of one campaign.
//
// All methods are safe for concurrent use. Concurrent transitions of the same key are
// last-write-wins, callers that need ordering (such as retries) must serialize on their side.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/bulkmail/pkg/batch"
)

var (
	ErrUnknownKey    = errors.New("ledger: unknown sender/recipient pair")
	ErrInFlight      = errors.New("ledger: delivery is still in progress")
	ErrInvalidStatus = errors.New("ledger: invalid status")
)

type Option func(*Ledger)

// WithClock replaces time.Now as the source of UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

type TransitionOption func(*Entry)

func WithDetail(detail string) TransitionOption {
	return func(e *Entry) {
		e.Detail = detail
	}
}

func WithDuration(d time.Duration) TransitionOption {
	return func(e *Entry) {
		e.Duration = d
	}
}

type Ledger struct {
	mu      sync.RWMutex
	now     func() time.Time
	entries []Entry
	index   map[Key]int
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		now:     time.Now,
		entries: make([]Entry, 0),
		index:   make(map[Key]int),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Initialize replaces all state with one pending entry per pair in assignment order.
// A pair appearing twice keeps its first position.
func (l *Ledger) Initialize(assignment batch.Assignment) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.entries = make([]Entry, 0, assignment.AssignedCount())
	l.index = make(map[Key]int, assignment.AssignedCount())
	for _, b := range assignment.Batches {
		for _, r := range b.Recipients {
			key := KeyOf(b.Sender, r)
			if _, exist := l.index[key]; exist {
				continue
			}

			l.index[key] = len(l.entries)
			l.entries = append(l.entries, Entry{
				Key:       key,
				Status:    StatusPending,
				Sender:    b.Sender,
				Recipient: r,
				UpdatedAt: now,
			})
		}
	}
}

// Transition overwrites the status of key. Detail and duration are reset unless given in opts.
func (l *Ledger) Transition(key Key, status Status, opts ...TransitionOption) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[key.normalize()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key.normalize())
	}

	entry := l.entries[i]
	entry.Status = status
	entry.Detail = ""
	entry.Duration = 0
	for _, opt := range opts {
		opt(&entry)
	}

	entry.UpdatedAt = l.now()
	l.entries[i] = entry
	return nil
}

// Retry marks key as retrying and returns what must be sent again.
func (l *Ledger) Retry(key Key) (Payload, error) {
	return l.retry(key, false)
}

// TryRetry is like Retry but refuses with ErrInFlight when the key is sending or retrying.
func (l *Ledger) TryRetry(key Key) (Payload, error) {
	return l.retry(key, true)
}

func (l *Ledger) retry(key Key, refuseInFlight bool) (Payload, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	i, ok := l.index[key.normalize()]
	if !ok {
		return Payload{}, fmt.Errorf("%w: %s", ErrUnknownKey, key.normalize())
	}

	entry := l.entries[i]
	if refuseInFlight && entry.Status.InFlight() {
		return Payload{}, fmt.Errorf("%w: %s is %s", ErrInFlight, entry.Key, entry.Status)
	}

	entry.Status = StatusRetrying
	entry.Detail = ""
	entry.Duration = 0
	entry.UpdatedAt = l.now()
	l.entries[i] = entry

	return Payload{
		Sender:    entry.Sender,
		Recipient: entry.Recipient,
	}, nil
}

// Snapshot returns a copy of every entry in initialization order.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]Entry, len(l.entries))
	copy(entries, l.entries)
	return Snapshot{Entries: entries}
}

// Keys returns the keys belonging to one sender batch, in order.
func (l *Ledger) Keys(b batch.Batch) []Key {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Key, 0, len(b.Recipients))
	for _, r := range b.Recipients {
		key := KeyOf(b.Sender, r)
		if _, ok := l.index[key]; ok {
			out = append(out, key)
		}
	}

	return out
}

func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Snapshot())
}

// UnmarshalJSON restores entries written by MarshalJSON.
func (l *Ledger) UnmarshalJSON(b []byte) error {
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.now == nil {
		l.now = time.Now
	}

	l.entries = make([]Entry, 0, len(snap.Entries))
	l.index = make(map[Key]int, len(snap.Entries))
	for _, e := range snap.Entries {
		e.Key = e.Key.normalize()
		if _, exist := l.index[e.Key]; exist {
			continue
		}

		l.index[e.Key] = len(l.entries)
		l.entries = append(l.entries, e)
	}

	return nil
}
