package comp

import (
	"fmt"
	"os"

	"github.com/argentwm/argent/internal/comp/backend"
	"github.com/argentwm/argent/internal/comp/backend/drm"
	"github.com/argentwm/argent/internal/comp/backend/headless"
	"github.com/argentwm/argent/internal/logging"
)

// OpenBackend picks a backend. An explicit kind wins; "auto" tries
// DRM when no compositor is already running, then falls back to
// headless.
func OpenBackend(kind, device string, outputs []headless.OutputConfig) (backend.Backend, error) {
	switch kind {
	case "headless":
		return headless.Open(outputs), nil

	case "drm":
		be, err := drm.Open(device)
		if err != nil {
			return nil, fmt.Errorf("open drm backend: %w", err)
		}
		return be, nil

	case "", "auto":
		if os.Getenv("WAYLAND_DISPLAY") == "" {
			be, err := drm.Open(device)
			if err == nil {
				logging.Logger.Info("using drm backend")
				return be, nil
			}
			logging.Logger.Debug("drm backend unavailable", "err", err)
		}
		logging.Logger.Info("using headless backend")
		return headless.Open(outputs), nil
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}
