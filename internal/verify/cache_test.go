package verify

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xordi/modguard/internal/analyzer"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/shared/hash"
)

type countingVerifier struct {
	calls atomic.Int64
}

func (v *countingVerifier) Analyze(src []byte) *analyzer.Report {
	v.calls.Add(1)
	return &analyzer.Report{
		SourceHash:  hash.Default().Sum(src),
		CryptoUsage: analyzer.CryptoNone,
	}
}

func TestCacheVerifiesOncePerHash(t *testing.T) {
	v := &countingVerifier{}
	c := NewCache(v, logging.NewNop())
	src := []byte("module.exports = 1;")
	h := hash.Default().Sum(src)

	first := c.GetOrVerify(h, src)
	second := c.GetOrVerify(h, src)
	if first != second {
		t.Error("repeated verification returned distinct reports")
	}
	if got := v.calls.Load(); got != 1 {
		t.Errorf("verifier called %d times, want 1", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCacheConcurrentSameHash(t *testing.T) {
	v := &countingVerifier{}
	c := NewCache(v, logging.NewNop())
	src := []byte("module.exports = 2;")
	h := hash.Default().Sum(src)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.GetOrVerify(h, src)
		}()
	}
	wg.Wait()

	if got := v.calls.Load(); got != 1 {
		t.Errorf("verifier called %d times under concurrency, want 1", got)
	}
}

func TestCacheDistinctHashes(t *testing.T) {
	v := &countingVerifier{}
	c := NewCache(v, logging.NewNop())

	a := []byte("module.exports = 1;")
	b := []byte("module.exports = 2;")
	c.GetOrVerify(hash.Default().Sum(a), a)
	c.GetOrVerify(hash.Default().Sum(b), b)

	if got := v.calls.Load(); got != 2 {
		t.Errorf("verifier called %d times, want 2", got)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestCacheClear(t *testing.T) {
	v := &countingVerifier{}
	c := NewCache(v, logging.NewNop())
	src := []byte("module.exports = 4;")
	h := hash.Default().Sum(src)

	c.GetOrVerify(h, src)
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after Clear", c.Len())
	}
	c.GetOrVerify(h, src)
	if got := v.calls.Load(); got != 2 {
		t.Errorf("verifier called %d times after Clear, want 2", got)
	}
}

func TestCacheGet(t *testing.T) {
	v := &countingVerifier{}
	c := NewCache(v, logging.NewNop())
	src := []byte("module.exports = 3;")
	h := hash.Default().Sum(src)

	if _, ok := c.Get(h); ok {
		t.Error("Get() found report before verification")
	}
	c.GetOrVerify(h, src)
	if _, ok := c.Get(h); !ok {
		t.Error("Get() missing report after verification")
	}
}
