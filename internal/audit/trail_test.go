package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/xordi/modguard/internal/infrastructure/logging"
)

func TestTrailAddAssignsIdentity(t *testing.T) {
	trail := NewTrail(8, logging.NewNop())
	rec := trail.Add(Record{
		Kind:       "web-auth",
		SourceHash: "abc123",
		Decision:   DecisionAllow,
	})
	if rec.ID == "" || !strings.HasPrefix(rec.ID, "rec_") {
		t.Errorf("ID = %q, want rec_ prefix", rec.ID)
	}
	if rec.Timestamp.IsZero() {
		t.Error("Timestamp not assigned")
	}
	if trail.Len() != 1 {
		t.Errorf("Len() = %d, want 1", trail.Len())
	}
}

func TestTrailRecordsNewestFirst(t *testing.T) {
	trail := NewTrail(8, logging.NewNop())
	for _, h := range []string{"h1", "h2", "h3"} {
		trail.Add(Record{SourceHash: h, Decision: DecisionReject})
	}

	got := trail.Records(2)
	if len(got) != 2 {
		t.Fatalf("Records(2) returned %d", len(got))
	}
	if got[0].SourceHash != "h3" || got[1].SourceHash != "h2" {
		t.Errorf("order wrong: %q, %q", got[0].SourceHash, got[1].SourceHash)
	}
}

func TestTrailRingOverwrite(t *testing.T) {
	trail := NewTrail(4, logging.NewNop())
	hashes := []string{"h1", "h2", "h3", "h4", "h5", "h6"}
	for _, h := range hashes {
		trail.Add(Record{SourceHash: h, Decision: DecisionAllow})
	}

	if trail.Len() != 4 {
		t.Fatalf("Len() = %d, want capacity 4", trail.Len())
	}
	got := trail.Records(0)
	want := []string{"h6", "h5", "h4", "h3"}
	for i, w := range want {
		if got[i].SourceHash != w {
			t.Errorf("record %d = %q, want %q", i, got[i].SourceHash, w)
		}
	}
}

func TestTrailSubscribe(t *testing.T) {
	trail := NewTrail(8, logging.NewNop())
	ch, cancel := trail.Subscribe()
	defer cancel()

	trail.Add(Record{SourceHash: "h1", Decision: DecisionReject, Reason: "capability_violation"})

	select {
	case rec := <-ch:
		if rec.SourceHash != "h1" || rec.Decision != DecisionReject {
			t.Errorf("streamed record = %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("no record streamed")
	}

	cancel()
	trail.Add(Record{SourceHash: "h2", Decision: DecisionAllow})
	select {
	case rec, ok := <-ch:
		if ok && rec.SourceHash == "h2" {
			t.Error("record delivered after cancel")
		}
	default:
	}
}
