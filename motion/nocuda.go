//go:build !cuda

package motion

import (
	"fmt"
)

// newGPUMixture is a stub when CUDA support is disabled, build with
// -tags=cuda to enable it
func newGPUMixture(modelParams) (BackgroundModel, error) {
	return nil, fmt.Errorf("%w: built without cuda support, rebuild with -tags=cuda", ErrAlgorithmUnavailable)
}
