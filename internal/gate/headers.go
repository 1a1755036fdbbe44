package gate

import (
	"context"
	"fmt"
)

// generateHeadersExport is the function name an auth module must export to
// serve header generation.
const generateHeadersExport = "generateHeaders"

// HeaderRequest is one signed-header generation request.
type HeaderRequest struct {
	Params    string `json:"params"`
	Cookies   string `json:"cookies"`
	Stub      string `json:"stub"`
	Timestamp int64  `json:"timestamp"`
	DeviceID  string `json:"device_id"`
	InstallID string `json:"install_id"`
}

// HeaderGenerator is the typed call surface over a loaded auth module. It
// only exists for modules the gate admitted, so holding one is proof the
// capability check passed.
type HeaderGenerator struct {
	mod *VerifiedModule
}

// HeaderGenerator returns the generator for a loaded module kind. The
// module must export a generateHeaders function.
func (g *Gate) HeaderGenerator(kind string) (*HeaderGenerator, error) {
	mod, ok := g.Module(kind)
	if !ok {
		return nil, fmt.Errorf("module kind %q not loaded", kind)
	}
	if !mod.Instance.Has(generateHeadersExport) {
		return nil, fmt.Errorf("module kind %q does not export %s", kind, generateHeadersExport)
	}
	return &HeaderGenerator{mod: mod}, nil
}

// Module returns the verified module backing this generator.
func (h *HeaderGenerator) Module() *VerifiedModule {
	return h.mod
}

// Generate invokes the module's generateHeaders export and returns the
// resulting header set.
func (h *HeaderGenerator) Generate(ctx context.Context, req HeaderRequest) (map[string]string, error) {
	out, err := h.mod.Instance.Call(ctx, generateHeadersExport,
		req.Params, req.Cookies, req.Stub, req.Timestamp, req.DeviceID, req.InstallID)
	if err != nil {
		return nil, err
	}

	raw, ok := out.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("module kind %q returned %T, want header object", h.mod.Kind, out)
	}
	headers := make(map[string]string, len(raw))
	for k, v := range raw {
		headers[k] = fmt.Sprint(v)
	}
	return headers, nil
}
