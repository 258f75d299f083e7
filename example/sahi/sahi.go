package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/swdee/go-streamdetect"
	"github.com/swdee/go-streamdetect/color"
	"github.com/swdee/go-streamdetect/preprocess"
	"github.com/swdee/go-streamdetect/render"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

func main() {

	// read in cli flags
	imgFile := flag.String("i", "../data/field.jpg", "Image file to run colour anomaly detection on")
	saveFile := flag.String("o", "../data/field-sahi-out.jpg", "The output JPG file with detection markers")
	cfgFile := flag.String("c", "", "YAML config file, the color section and aggressiveness are used")
	tileSize := flag.Int("t", 640, "Width and height of each tile")
	overlap := flag.Float64("overlap", 0.2, "Ratio of each tile that overlaps its neighbour")
	workers := flag.Int("s", 3, "Number of tiles processed in parallel")
	iou := flag.Float64("iou", 0.45, "IoU above which tile detections are merged")

	flag.Parse()

	logger, err := zap.NewDevelopment()

	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}

	defer logger.Sync()

	cfg := streamdetect.DefaultConfig()

	if *cfgFile != "" {
		cfg, err = streamdetect.LoadConfig(*cfgFile)

		if err != nil {
			logger.Fatal("error loading config", zap.Error(err))
		}
	}

	// load image
	img := gocv.IMRead(*imgFile, gocv.IMReadColor)

	if img.Empty() {
		logger.Fatal("error reading image", zap.String("file", *imgFile))
	}

	defer img.Close()

	logger.Info("source image", zap.Int("width", img.Cols()), zap.Int("height", img.Rows()))

	start := time.Now()

	sahi := preprocess.NewSAHI(*tileSize, *tileSize, *overlap, *overlap)
	slices := sahi.Slice(img)

	jobs := make(chan preprocess.Slice)

	// waitgroup used to wait for all workers to complete
	var wg sync.WaitGroup
	// create mutex to ensure stdout results are in order
	var printMu sync.Mutex

	for w := 0; w < max(*workers, 1); w++ {

		// a detector keeps per frame buffers so each worker has its own
		det, err := color.NewDetector(cfg.ColorConfig(), color.WithLogger(logger))

		if err != nil {
			logger.Fatal("error creating color detector", zap.Error(err))
		}

		wg.Add(1)

		go func() {
			defer wg.Done()
			defer det.Close()

			for sl := range jobs {

				// build one big string for this slice's output
				var sb strings.Builder

				sb.WriteString(fmt.Sprintf("\nProcessing Slice (%d %d %d %d) with box size (%d %d)\n",
					sl.X, sl.Y, sl.X2, sl.Y2, sl.X2-sl.X, sl.Y2-sl.Y),
				)

				// the slice shares memory with the source image, detect on a
				// continuous copy
				tile := sl.Mat().Clone()
				dets, err := det.Detect(tile, 0)
				tile.Close()

				if err != nil {
					logger.Error("error detecting slice", zap.Error(err))
				}

				for _, d := range dets {
					sb.WriteString(fmt.Sprintf("%s @ (%d %d %d %d) %f\n",
						d.Type, d.BBox.X, d.BBox.Y, d.BBox.Right(), d.BBox.Bottom(), d.Confidence))
				}

				sahi.AddResult(sl, dets)
				sl.Free()

				// print slice detection results
				printMu.Lock()
				fmt.Print(sb.String())
				printMu.Unlock()
			}
		}()
	}

	for _, sl := range slices {
		jobs <- sl
	}

	close(jobs)
	wg.Wait()

	// get the detection results from all slices combined into those which map
	// back onto the source image dimensions
	dets := sahi.Detections(*iou, 0.7)

	fmt.Printf("\nCombined detection results\n")

	for _, d := range dets {
		fmt.Printf("%d %s @ (%d %d %d %d) %f\n", d.ID, d.Type, d.BBox.X, d.BBox.Y,
			d.BBox.Right(), d.BBox.Bottom(), d.Confidence)
	}

	if err := render.Detections(&img, dets, render.DefaultBoxStyle()); err != nil {
		logger.Error("error rendering detections", zap.Error(err))
	}

	logger.Info("SAHI complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("slices", len(slices)),
		zap.Int("objects", len(dets)),
	)

	// Save the result
	if ok := gocv.IMWrite(*saveFile, img); !ok {
		logger.Fatal("failed to save the image", zap.String("file", *saveFile))
	}

	logger.Info("saved detection result", zap.String("file", *saveFile))

	// free results
	sahi.FreeResults()
}
