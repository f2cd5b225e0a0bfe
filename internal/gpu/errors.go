package gpu

import "github.com/cockroachdb/errors"

// Error kinds shared by the renderer and its device backends. Callers
// classify failures with errors.Is; the concrete error carries the context.
var (
	// ErrSetupFatal marks any failure while building the renderer. Nothing
	// marked with it is recoverable.
	ErrSetupFatal = errors.New("renderer setup failed")

	ErrNoSuitableDevice            = errors.New("failed to find a suitable GPU")
	ErrNoSuitableMemoryType        = errors.New("failed to find a suitable memory type")
	ErrUnsupportedLayoutTransition = errors.New("unsupported layout transition")

	// ErrPresentationStale reports a surface that no longer matches the
	// swapchain. The frame loop answers it with a chain rebuild.
	ErrPresentationStale = errors.New("presentation surface is stale")

	ErrAssetLoad = errors.New("failed to load asset")
)

// SetupFailed wraps err with the failing step and marks it ErrSetupFatal.
func SetupFailed(err error, step string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, step), ErrSetupFatal)
}
