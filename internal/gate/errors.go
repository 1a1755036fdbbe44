package gate

import (
	"fmt"
	"strings"

	"github.com/xordi/modguard/internal/shared/hash"
)

// CapabilityViolationError rejects a module whose static analysis shows it
// could reach outside the process. It names what was found, never the
// source itself.
type CapabilityViolationError struct {
	SourceHash  string
	Globals     []string
	Findings    []string
	ParseFailed bool
}

func (e *CapabilityViolationError) Error() string {
	if e.ParseFailed {
		return fmt.Sprintf("module %s rejected: source not statically verifiable", hash.Short(e.SourceHash))
	}
	if len(e.Findings) > 0 {
		return fmt.Sprintf("module %s rejected: %s", hash.Short(e.SourceHash), strings.Join(e.Findings, "; "))
	}
	return fmt.Sprintf("module %s rejected: capability violation", hash.Short(e.SourceHash))
}
