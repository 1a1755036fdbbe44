// Package gate decides whether closed-source modules may be instantiated
// inside the trusted process.
//
// The pipeline per load attempt is fetch, verify, instantiate, audit.
// Verification verdicts are cached by source hash; instantiation happens at
// most once per hash no matter how many callers race. Every attempt that
// reaches verification leaves exactly one audit record.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xordi/modguard/internal/analyzer"
	"github.com/xordi/modguard/internal/audit"
	"github.com/xordi/modguard/internal/fetcher"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/sandbox"
	"github.com/xordi/modguard/internal/shared/hash"
	"github.com/xordi/modguard/internal/verify"
)

// Rejection reasons recorded in the audit trail.
const (
	ReasonFetchFailed         = "fetch_failed"
	ReasonIntegrityMismatch   = "integrity_mismatch"
	ReasonCapabilityViolation = "capability_violation"
	ReasonInstantiationFailed = "instantiation_failed"
)

// SourceFetcher retrieves module source. Satisfied by fetcher.Fetcher.
type SourceFetcher interface {
	Fetch(ctx context.Context, url, expectedHash string) (*fetcher.Source, error)
}

// Options scopes one load attempt.
type Options struct {
	// Kind labels the module's role. Loaded modules are addressable by kind.
	Kind string
	// ExpectedHash pins the source to a published digest. Empty disables
	// the pin.
	ExpectedHash string
}

// VerifiedModule is a module that passed verification and instantiation.
type VerifiedModule struct {
	Kind       string
	URL        string
	SourceHash string
	Report     *analyzer.Report
	Instance   *sandbox.Instance
	RecordID   string
	LoadedAt   time.Time
}

// Gate is the load gate. Safe for concurrent use.
type Gate struct {
	fetcher    SourceFetcher
	cache      *verify.Cache
	trail      *audit.Trail
	sandboxCfg sandbox.Config
	log        *logging.Logger

	group singleflight.Group

	mu     sync.RWMutex
	byHash map[string]*VerifiedModule
	byKind map[string]*VerifiedModule
}

// New creates a gate over the given pipeline stages.
func New(f SourceFetcher, cache *verify.Cache, trail *audit.Trail, sandboxCfg sandbox.Config, log *logging.Logger) *Gate {
	return &Gate{
		fetcher:    f,
		cache:      cache,
		trail:      trail,
		sandboxCfg: sandboxCfg,
		log:        log,
		byHash:     make(map[string]*VerifiedModule),
		byKind:     make(map[string]*VerifiedModule),
	}
}

// Load fetches, verifies, and instantiates the module at url. A module that
// was already allowed under the same source hash is returned as-is without
// a new audit record; every rejection is recorded per attempt.
func (g *Gate) Load(ctx context.Context, url string, opts Options) (*VerifiedModule, error) {
	src, err := g.fetcher.Fetch(ctx, url, opts.ExpectedHash)
	if err != nil {
		var ie *fetcher.IntegrityError
		if errors.As(err, &ie) {
			g.trail.Add(audit.Record{
				Kind:       opts.Kind,
				URL:        url,
				SourceHash: ie.Actual,
				Decision:   audit.DecisionReject,
				Reason:     ReasonIntegrityMismatch,
			})
		} else {
			g.trail.Add(audit.Record{
				Kind:     opts.Kind,
				URL:      url,
				Decision: audit.DecisionReject,
				Reason:   ReasonFetchFailed,
			})
		}
		return nil, err
	}

	if mod := g.lookup(src.Hash); mod != nil {
		return mod, nil
	}

	v, err, _ := g.group.Do(src.Hash, func() (interface{}, error) {
		return g.admit(src, opts)
	})
	if err != nil {
		return nil, err
	}
	return v.(*VerifiedModule), nil
}

// admit runs verification and instantiation for one source hash. Exactly
// one goroutine executes it per in-flight hash.
func (g *Gate) admit(src *fetcher.Source, opts Options) (*VerifiedModule, error) {
	if mod := g.lookup(src.Hash); mod != nil {
		return mod, nil
	}

	report := g.cache.GetOrVerify(src.Hash, src.Body)
	summary := report.Summarize()

	if report.CanAccessExternal {
		g.trail.Add(audit.Record{
			Kind:       opts.Kind,
			URL:        src.URL,
			SourceHash: src.Hash,
			Decision:   audit.DecisionReject,
			Reason:     ReasonCapabilityViolation,
			Summary:    &summary,
		})
		return nil, &CapabilityViolationError{
			SourceHash:  src.Hash,
			Globals:     report.AccessedGlobals,
			Findings:    report.Findings,
			ParseFailed: report.ParseFailed,
		}
	}

	inst, err := sandbox.Instantiate(src.Body, g.sandboxCfg)
	if err != nil {
		g.trail.Add(audit.Record{
			Kind:       opts.Kind,
			URL:        src.URL,
			SourceHash: src.Hash,
			Decision:   audit.DecisionReject,
			Reason:     ReasonInstantiationFailed,
			Summary:    &summary,
		})
		return nil, fmt.Errorf("instantiate module %s: %w", hash.Short(src.Hash), err)
	}

	rec := g.trail.Add(audit.Record{
		Kind:       opts.Kind,
		URL:        src.URL,
		SourceHash: src.Hash,
		Decision:   audit.DecisionAllow,
		Summary:    &summary,
	})

	mod := &VerifiedModule{
		Kind:       opts.Kind,
		URL:        src.URL,
		SourceHash: src.Hash,
		Report:     report,
		Instance:   inst,
		RecordID:   rec.ID,
		LoadedAt:   rec.Timestamp,
	}

	g.mu.Lock()
	g.byHash[src.Hash] = mod
	if opts.Kind != "" {
		g.byKind[opts.Kind] = mod
	}
	g.mu.Unlock()

	g.log.Info("module admitted",
		zap.String("kind", opts.Kind),
		zap.String("hash", hash.Short(src.Hash)),
		zap.String("crypto_usage", string(report.CryptoUsage)),
		zap.Strings("exports", inst.Exports()),
	)
	return mod, nil
}

func (g *Gate) lookup(sourceHash string) *VerifiedModule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.byHash[sourceHash]
}

// Module returns the loaded module for a kind.
func (g *Gate) Module(kind string) (*VerifiedModule, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mod, ok := g.byKind[kind]
	return mod, ok
}

// Modules returns all loaded modules keyed by kind.
func (g *Gate) Modules() map[string]*VerifiedModule {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]*VerifiedModule, len(g.byKind))
	for k, v := range g.byKind {
		out[k] = v
	}
	return out
}
