// Package fetcher retrieves module source over HTTP and verifies its
// integrity before anything downstream sees the bytes.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xordi/modguard/internal/infrastructure/config"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/shared/hash"
)

// Source is one successfully fetched module source. Hash is computed over
// the raw response bytes before any inspection or transformation, so it is
// the hash every later stage keys on.
type Source struct {
	URL         string
	Body        []byte
	Hash        string
	ContentType string
	FetchedAt   time.Time
}

// Fetcher retrieves module source with retries, rate limiting, and a hard
// size cap. Safe for concurrent use.
type Fetcher struct {
	client   *resty.Client
	limiter  *rate.Limiter
	maxBytes int64
	hasher   *hash.Hasher
	log      *logging.Logger
}

// New creates a fetcher from configuration.
func New(cfg config.FetchConfig, log *logging.Logger) *Fetcher {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.MaxRetries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("User-Agent", "modguard/1.0").
		SetHeader("Accept", "text/javascript, application/javascript, text/plain")
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSec > 0 {
		burst := int(cfg.RequestsPerSec)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
	}

	maxBytes := cfg.MaxSourceBytes
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}

	return &Fetcher{
		client:   restyClient,
		limiter:  limiter,
		maxBytes: maxBytes,
		hasher:   hash.Default(),
		log:      log,
	}
}

// Fetch retrieves module source from url. When expectedHash is non-empty the
// body digest must match it or the bytes are discarded with an
// IntegrityError; nothing downstream ever receives unpinned content when a
// pin is configured.
func (f *Fetcher) Fetch(ctx context.Context, url, expectedHash string) (*Source, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("rate limit: %w", err)}
	}

	start := time.Now()
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		f.log.Warn("module fetch failed",
			zap.String("url", url),
			zap.Error(err),
		)
		return nil, &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode() != 200 {
		f.log.Warn("module fetch rejected",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode()),
		)
		return nil, &FetchError{URL: url, Status: resp.StatusCode()}
	}

	body := resp.Body()
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("source exceeds %d byte limit", f.maxBytes)}
	}
	if len(body) == 0 {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("empty response body")}
	}
	if !isTextContent(body) {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("response is not text content")}
	}

	digest := f.hasher.Sum(body)
	if expectedHash != "" && !hash.Equal(digest, expectedHash) {
		f.log.Warn("module integrity mismatch",
			zap.String("url", url),
			zap.String("expected", hash.Short(expectedHash)),
			zap.String("actual", hash.Short(digest)),
		)
		return nil, &IntegrityError{URL: url, Expected: expectedHash, Actual: digest}
	}

	f.log.Info("module source fetched",
		zap.String("url", url),
		zap.String("hash", hash.Short(digest)),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Source{
		URL:         url,
		Body:        body,
		Hash:        digest,
		ContentType: resp.Header().Get("Content-Type"),
		FetchedAt:   start,
	}, nil
}

// isTextContent sniffs the body and accepts only text types. Detection walks
// the type hierarchy so text/javascript and friends pass through their
// text/plain ancestry.
func isTextContent(body []byte) bool {
	for m := mimetype.Detect(body); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
