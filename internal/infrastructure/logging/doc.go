// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The JSON mode matters here: every load decision the gate makes is emitted
// through this package as one structured line, and that line is the sole
// externally observable trace of the verifier's behavior. Log collectors
// alert on REJECT decisions from it.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8100"))
//	logger.Error("Fetch failed", zap.Error(err))
package logging
