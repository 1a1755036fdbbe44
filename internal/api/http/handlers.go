// Package http exposes the verifier's HTTP surface: header generation
// backed by admitted modules, on-demand analysis, and the audit trail.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xordi/modguard/internal/analyzer"
	"github.com/xordi/modguard/internal/audit"
	"github.com/xordi/modguard/internal/fetcher"
	"github.com/xordi/modguard/internal/gate"
	"github.com/xordi/modguard/internal/infrastructure/config"
	"github.com/xordi/modguard/internal/infrastructure/logging"
	"github.com/xordi/modguard/internal/infrastructure/monitoring"
	"github.com/xordi/modguard/internal/shared/hash"
)

// Handlers serves the verifier API.
type Handlers struct {
	gate     *gate.Gate
	analyzer *analyzer.Analyzer
	trail    *audit.Trail
	metrics  *monitoring.Metrics
	modules  map[string]config.ModulePin
	log      *logging.Logger
	started  time.Time
}

// NewHandlers creates the API handlers.
func NewHandlers(
	g *gate.Gate,
	a *analyzer.Analyzer,
	trail *audit.Trail,
	metrics *monitoring.Metrics,
	modules map[string]config.ModulePin,
	log *logging.Logger,
) *Handlers {
	return &Handlers{
		gate:     g,
		analyzer: a,
		trail:    trail,
		metrics:  metrics,
		modules:  modules,
		log:      log,
		started:  time.Now(),
	}
}

// Root returns service identity and the loaded module kinds.
func (h *Handlers) Root(c *gin.Context) {
	kinds := make([]string, 0, len(h.gate.Modules()))
	for kind := range h.gate.Modules() {
		kinds = append(kinds, kind)
	}
	c.JSON(http.StatusOK, gin.H{
		"service": "modguard",
		"status":  "running",
		"modules": kinds,
		"endpoints": []string{
			"/health",
			"/generate-headers",
			"/register-device",
			"/analyze",
			"/verify",
			"/records",
			"/records/stream",
			"/metrics",
		},
	})
}

// Health reports liveness and per-kind module status.
func (h *Handlers) Health(c *gin.Context) {
	loaded := h.gate.Modules()
	modules := make(map[string]gin.H, len(h.modules))
	for kind := range h.modules {
		if mod, ok := loaded[kind]; ok {
			modules[kind] = gin.H{
				"loaded": true,
				"hash":   hash.Short(mod.SourceHash),
			}
		} else {
			modules[kind] = gin.H{"loaded": false}
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"uptime":  time.Since(h.started).Seconds(),
		"modules": modules,
	})
}

type generateHeadersRequest struct {
	Kind      string `json:"kind"`
	Params    string `json:"params"`
	Cookies   string `json:"cookies"`
	Stub      string `json:"stub"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"device_id"`
	InstallID string `json:"install_id"`
}

// GenerateHeaders produces signed request headers via the admitted auth
// module for the requested kind, loading it on first use.
func (h *Handlers) GenerateHeaders(c *gin.Context) {
	var req generateHeadersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Kind == "" {
		req.Kind = config.KindWebAuth
	}
	if req.Timestamp == 0 {
		req.Timestamp = time.Now().Unix()
	}

	if err := h.ensureLoaded(c, req.Kind); err != nil {
		h.writeLoadError(c, err)
		return
	}

	gen, err := h.gate.HeaderGenerator(req.Kind)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	headers, err := gen.Generate(c.Request.Context(), gate.HeaderRequest{
		Params:    req.Params,
		Cookies:   req.Cookies,
		Stub:      req.Stub,
		Timestamp: req.Timestamp,
		DeviceID:  req.DeviceID,
		InstallID: req.InstallID,
	})
	if err != nil {
		h.log.Error("header generation failed",
			zap.String("kind", req.Kind),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "header generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"headers": headers, "timestamp": req.Timestamp})
}

type registerDeviceRequest struct {
	Kind      string `json:"kind"`
	DeviceID  string `json:"device_id"`
	InstallID string `json:"install_id"`
}

// RegisterDevice mints a device registration via the admitted auth module
// for the requested kind, loading it on first use.
func (h *Handlers) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Kind == "" {
		req.Kind = config.KindWebAuth
	}

	if err := h.ensureLoaded(c, req.Kind); err != nil {
		h.writeLoadError(c, err)
		return
	}

	reg, err := h.gate.DeviceRegistrar(req.Kind)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	device, err := reg.Register(c.Request.Context(), gate.DeviceRequest{
		DeviceID:  req.DeviceID,
		InstallID: req.InstallID,
	})
	if err != nil {
		h.log.Error("device registration failed",
			zap.String("kind", req.Kind),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device registration failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"device": device})
}

type analyzeRequest struct {
	Source string `json:"source" binding:"required"`
}

// Analyze runs static capability analysis on submitted source without
// loading anything.
func (h *Handlers) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source is required"})
		return
	}

	start := time.Now()
	report := h.analyzer.Analyze([]byte(req.Source))
	h.metrics.ObserveAnalyze(time.Since(start))

	c.JSON(http.StatusOK, report.Summarize())
}

// VerifyAll loads every configured module kind and reports per-kind status.
func (h *Handlers) VerifyAll(c *gin.Context) {
	results := make(map[string]gin.H, len(h.modules))
	allLoaded := len(h.modules) > 0

	for kind, pin := range h.modules {
		mod, err := h.gate.Load(c.Request.Context(), pin.URL, gate.Options{
			Kind:         kind,
			ExpectedHash: pin.ExpectedHash,
		})
		if err != nil {
			allLoaded = false
			results[kind] = gin.H{
				"loaded": false,
				"reason": loadErrorCategory(err),
			}
			continue
		}
		results[kind] = gin.H{
			"loaded":       true,
			"hash":         mod.SourceHash,
			"crypto_usage": mod.Report.CryptoUsage,
			"exports":      mod.Instance.Exports(),
		}
	}

	h.metrics.SetModulesActive(len(h.gate.Modules()))

	status := http.StatusOK
	if !allLoaded {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"modules": results})
}

// Records returns recent audit records, newest first.
func (h *Handlers) Records(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"records": h.trail.Records(limit)})
}

// Snapshot returns current counters for dashboards that cannot scrape
// Prometheus.
func (h *Handlers) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetSnapshot())
}

// ensureLoaded loads the configured module for kind on first use.
func (h *Handlers) ensureLoaded(c *gin.Context, kind string) error {
	if _, ok := h.gate.Module(kind); ok {
		return nil
	}
	pin, ok := h.modules[kind]
	if !ok {
		return errUnknownKind
	}
	_, err := h.gate.Load(c.Request.Context(), pin.URL, gate.Options{
		Kind:         kind,
		ExpectedHash: pin.ExpectedHash,
	})
	if err == nil {
		h.metrics.SetModulesActive(len(h.gate.Modules()))
	}
	return err
}

var errUnknownKind = errors.New("unknown module kind")

// writeLoadError maps pipeline failures to HTTP statuses. Rejected modules
// surface the rejection category only; findings stay in the audit trail.
func (h *Handlers) writeLoadError(c *gin.Context, err error) {
	var cv *gate.CapabilityViolationError
	var ie *fetcher.IntegrityError
	var fe *fetcher.FetchError
	switch {
	case errors.Is(err, errUnknownKind):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown module kind"})
	case errors.As(err, &cv):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "module rejected", "reason": gate.ReasonCapabilityViolation})
	case errors.As(err, &ie):
		c.JSON(http.StatusConflict, gin.H{"error": "module rejected", "reason": gate.ReasonIntegrityMismatch})
	case errors.As(err, &fe):
		c.JSON(http.StatusBadGateway, gin.H{"error": "module fetch failed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "module load failed"})
	}
}

func loadErrorCategory(err error) string {
	var cv *gate.CapabilityViolationError
	var ie *fetcher.IntegrityError
	var fe *fetcher.FetchError
	switch {
	case errors.As(err, &cv):
		return gate.ReasonCapabilityViolation
	case errors.As(err, &ie):
		return gate.ReasonIntegrityMismatch
	case errors.As(err, &fe):
		return gate.ReasonFetchFailed
	default:
		return gate.ReasonInstantiationFailed
	}
}
