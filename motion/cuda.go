//go:build cuda

package motion

import (
	"fmt"

	"gocv.io/x/gocv"
	"gocv.io/x/gocv/cuda"
)

// gpuMixture runs the gaussian mixture model on a CUDA device
type gpuMixture struct {
	sub cuda.BackgroundSubtractorMOG2
	src cuda.GpuMat
	dst cuda.GpuMat
	raw gocv.Mat
}

// newGPUMixture builds the CUDA model, its parameters have already been
// matched against the subtractor defaults by checkGPUMixture
func newGPUMixture(modelParams) (BackgroundModel, error) {

	if n := cuda.GetCudaEnabledDeviceCount(); n < 1 {
		return nil, fmt.Errorf("%w: no CUDA device found", ErrAlgorithmUnavailable)
	}

	return &gpuMixture{
		sub: cuda.NewBackgroundSubtractorMOG2(),
		src: cuda.NewGpuMat(),
		dst: cuda.NewGpuMat(),
		raw: gocv.NewMat(),
	}, nil
}

func (g *gpuMixture) Apply(gray gocv.Mat, mask *gocv.Mat) error {
	g.src.Upload(gray)
	g.sub.Apply(g.src, &g.dst)
	g.dst.Download(&g.raw)
	gocv.Threshold(g.raw, mask, shadowLevel, 255, gocv.ThresholdBinary)
	return nil
}

func (g *gpuMixture) Reset() {
	g.sub.Close()
	g.sub = cuda.NewBackgroundSubtractorMOG2()
}

func (g *gpuMixture) Close() error {
	g.src.Close()
	g.dst.Close()
	g.raw.Close()
	return g.sub.Close()
}

func (g *gpuMixture) Algorithm() Algorithm {
	return GaussianMixture
}
