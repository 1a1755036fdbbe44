// Package audit keeps the load-decision trail.
//
// Every load attempt produces exactly one record, rejected or allowed. The
// in-memory trail is a bounded ring for operator queries; the structured
// log line emitted per record is the durable trace.
package audit

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/xordi/modguard/internal/analyzer"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/shared/hash"
	"github.com/xordi/modguard/internal/shared/id"
)

// Decision is the outcome of one load attempt.
type Decision string

const (
	DecisionAllow  Decision = "ALLOW"
	DecisionReject Decision = "REJECT"
)

// Record is one audited load attempt.
type Record struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Kind       string            `json:"kind,omitempty"`
	URL        string            `json:"url,omitempty"`
	SourceHash string            `json:"source_hash,omitempty"`
	Decision   Decision          `json:"decision"`
	Reason     string            `json:"reason,omitempty"`
	Summary    *analyzer.Summary `json:"summary,omitempty"`
}

// Trail is a bounded, append-only record of load decisions. Once capacity
// is reached the oldest records are overwritten. Safe for concurrent use.
type Trail struct {
	log      *logging.Logger
	ids      *id.Generator
	capacity int

	mu      sync.RWMutex
	records []Record
	next    int
	full    bool

	subMu sync.RWMutex
	subs  map[chan Record]struct{}
}

// DefaultCapacity bounds the trail when no capacity is configured.
const DefaultCapacity = 4096

// NewTrail creates a trail holding up to capacity records.
func NewTrail(capacity int, log *logging.Logger) *Trail {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trail{
		log:      log,
		ids:      id.Default(),
		capacity: capacity,
		records:  make([]Record, capacity),
		subs:     make(map[chan Record]struct{}),
	}
}

// Add appends a record, assigning its ID and timestamp, and returns the
// stored record. The structured log line it emits carries everything the
// record does, so the trace survives the ring.
func (t *Trail) Add(rec Record) Record {
	rec.ID = t.ids.GenerateWithPrefix(id.RecordPrefix)
	rec.Timestamp = time.Now().UTC()

	t.mu.Lock()
	t.records[t.next] = rec
	t.next++
	if t.next == t.capacity {
		t.next = 0
		t.full = true
	}
	t.mu.Unlock()

	fields := []zap.Field{
		zap.String("record_id", rec.ID),
		zap.String("decision", string(rec.Decision)),
		zap.String("kind", rec.Kind),
		zap.String("hash", hash.Short(rec.SourceHash)),
	}
	if rec.Reason != "" {
		fields = append(fields, zap.String("reason", rec.Reason))
	}
	if rec.Summary != nil {
		if b, err := sonic.Marshal(rec.Summary); err == nil {
			fields = append(fields, zap.ByteString("summary", b))
		}
	}
	t.log.Info("module load decision", fields...)

	t.broadcast(rec)
	return rec
}

// Records returns up to limit records, newest first. A non-positive limit
// returns everything retained.
func (t *Trail) Records(limit int) []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	size := t.next
	if t.full {
		size = t.capacity
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]Record, 0, limit)
	for i := 0; i < limit; i++ {
		idx := t.next - 1 - i
		if idx < 0 {
			idx += t.capacity
		}
		out = append(out, t.records[idx])
	}
	return out
}

// Len returns the number of retained records.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.full {
		return t.capacity
	}
	return t.next
}

// Subscribe registers a live feed of new records. The returned cancel
// function must be called to release the subscription. Slow consumers drop
// records rather than blocking the trail.
func (t *Trail) Subscribe() (<-chan Record, func()) {
	ch := make(chan Record, 64)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()

	cancel := func() {
		t.subMu.Lock()
		delete(t.subs, ch)
		t.subMu.Unlock()
	}
	return ch, cancel
}

func (t *Trail) broadcast(rec Record) {
	t.subMu.RLock()
	defer t.subMu.RUnlock()
	for ch := range t.subs {
		select {
		case ch <- rec:
		default:
		}
	}
}
