package gate

import (
	"context"
	"fmt"
)

// registerDeviceExport is the function name an auth module must export to
// serve device registration.
const registerDeviceExport = "registerDevice"

// DeviceRequest is one device registration request. Empty ids ask the
// module to mint fresh ones.
type DeviceRequest struct {
	DeviceID  string `json:"device_id"`
	InstallID string `json:"install_id"`
}

// DeviceRegistrar is the typed call surface for device registration over a
// loaded auth module, issued only for modules the gate admitted.
type DeviceRegistrar struct {
	mod *VerifiedModule
}

// DeviceRegistrar returns the registrar for a loaded module kind. The
// module must export a registerDevice function.
func (g *Gate) DeviceRegistrar(kind string) (*DeviceRegistrar, error) {
	mod, ok := g.Module(kind)
	if !ok {
		return nil, fmt.Errorf("module kind %q not loaded", kind)
	}
	if !mod.Instance.Has(registerDeviceExport) {
		return nil, fmt.Errorf("module kind %q does not export %s", kind, registerDeviceExport)
	}
	return &DeviceRegistrar{mod: mod}, nil
}

// Module returns the verified module backing this registrar.
func (r *DeviceRegistrar) Module() *VerifiedModule {
	return r.mod
}

// Register invokes the module's registerDevice export and returns the
// device descriptor it produced.
func (r *DeviceRegistrar) Register(ctx context.Context, req DeviceRequest) (map[string]interface{}, error) {
	out, err := r.mod.Instance.Call(ctx, registerDeviceExport, req.DeviceID, req.InstallID)
	if err != nil {
		return nil, err
	}

	device, ok := out.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("module kind %q returned %T, want device object", r.mod.Kind, out)
	}
	return device, nil
}
