// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command worker runs the stage-handler claim loop: it leases preprocess,
// decode_primary and decode_fallback jobs and executes them until idle or
// signalled, per spec.md §5.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"barcode-pipeline/internal/decode/fallback"
	"barcode-pipeline/internal/decode/primary"
	"barcode-pipeline/internal/handler"
	"barcode-pipeline/internal/model"
	"barcode-pipeline/internal/normalize"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/internal/storage/object"
	"barcode-pipeline/internal/worker"
	"barcode-pipeline/pkg/config"
	pkglog "barcode-pipeline/pkg/log"
)

func main() {
	batchSize := flag.Int("batch-size", 0, "override WORKER_BATCH_SIZE")
	pollInterval := flag.Duration("poll-interval", 0, "override WORKER_POLL_INTERVAL")
	once := flag.Bool("once", false, "poll until idle, for at most one poll interval plus one second, then exit")
	continuous := flag.Bool("continuous", false, "keep polling indefinitely instead of exiting after idle rounds")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := pkglog.NewLogger(&pkglog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := metadata.NewStores(ctx, cfg.Mongo)
	if err != nil {
		log.Fatalf("connect metadata store: %v", err)
	}
	defer stores.Close(context.Background())

	blobs, err := object.NewStore(ctx, cfg.Azure)
	if err != nil {
		log.Fatalf("connect object store: %v", err)
	}

	handlers := &handler.Handlers{
		Images:     stores.Images,
		Detections: stores.Detections,
		Products:   stores.Products,
		Blobs:      blobs,
		Normalizer: normalize.NewPassthroughNormalizer(),
		Primary:    []primary.Decoder{primary.NewFixtureDecoder("zbar")},
		Fallback:   fallback.NewGeminiClient(cfg.Gemini, 15),
		Logger:     logger,
		PreprocessOpts: normalize.Options{
			MaxDimension:    cfg.Preprocess.MaxDimension,
			DenoiseStrength: cfg.Preprocess.DenoiseStrength,
			Grayscale:       true,
			CLAHE:           true,
			Denoise:         true,
			Rotations:       []int{0, 90, 180, 270},
		},
	}

	poll := cfg.Worker.PollInterval
	if *pollInterval > 0 {
		poll = *pollInterval
	}
	batch := cfg.Worker.BatchSize
	if *batchSize > 0 {
		batch = *batchSize
	}

	rt := worker.New(worker.Config{
		WorkerID:      "worker-" + uuid.NewString()[:8],
		PollInterval:  poll,
		LeaseDuration: 2 * poll,
		BatchSize:     batch,
		MaxRetries:    cfg.Worker.MaxRetries,
		Continuous:    *continuous && !*once,
	}, stores.Jobs, map[model.JobType]worker.Handler{
		model.JobPreprocess:     handlers.Preprocess,
		model.JobDecodePrimary:  handlers.DecodePrimary,
		model.JobDecodeFallback: handlers.DecodeFallback,
	}, logger)

	if *once {
		runCtx, cancel := context.WithTimeout(ctx, poll+time.Second)
		defer cancel()
		if err := rt.Run(runCtx); err != nil && err != context.DeadlineExceeded {
			log.Printf("run: %v", err)
		}
		return
	}

	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			log.Printf("run exited: %v", err)
		}
	case <-ctx.Done():
		rt.Stop()
		<-done
	}

	fmt.Println("worker shut down")
}
