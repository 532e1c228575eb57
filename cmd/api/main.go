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

// Command api serves the Manual-Review Interface (spec.md §4.11) over
// HTTP: list images pending review, resolve them, and report pipeline
// stats.
package main

import (
	"context"
	"fmt"
	"log"

	"barcode-pipeline/internal/decode/fallback"
	"barcode-pipeline/internal/decode/primary"
	"barcode-pipeline/internal/dispatcher"
	"barcode-pipeline/internal/handler"
	"barcode-pipeline/internal/httpapi"
	"barcode-pipeline/internal/normalize"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/internal/storage/object"
	"barcode-pipeline/pkg/config"
	pkglog "barcode-pipeline/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := pkglog.NewLogger(&pkglog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	ctx := context.Background()
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
	}
	d := dispatcher.New(stores.Images, stores.Jobs, cfg.Worker.BatchSize, logger)

	addr := fmt.Sprintf("%s:%d", cfg.ReviewAPI.Host, cfg.ReviewAPI.Port)
	application := httpapi.New(addr, stores.Images, stores.Detections, handlers, d, logger)

	logger.Info("review API listening", "addr", addr)
	application.Run() // blocks; Hertz handles SIGINT/SIGTERM and graceful shutdown itself
	fmt.Println("review API shut down")
}
