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

// Command dispatcher seeds Jobs from Image status and reaps expired
// leases on a fixed cadence, per spec.md §4.4. The teacher has no
// polling scheduler to ground this loop on, so it follows
// internal/dispatcher's RunCycle/reap sequence directly.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"barcode-pipeline/internal/dispatcher"
	"barcode-pipeline/internal/storage/metadata"
	"barcode-pipeline/pkg/config"
	pkglog "barcode-pipeline/pkg/log"
)

func main() {
	batchSize := flag.Int("batch-size", 0, "jobs seeded per job type per cycle (overrides WORKER_BATCH_SIZE)")
	pollInterval := flag.Duration("poll-interval", 0, "time between cycles when not --once (overrides WORKER_POLL_INTERVAL)")
	once := flag.Bool("once", false, "run a single dispatch cycle then exit")
	stats := flag.Bool("stats", false, "print pipeline stats as JSON and exit without dispatching")
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

	batch := cfg.Worker.BatchSize
	if *batchSize > 0 {
		batch = *batchSize
	}
	d := dispatcher.New(stores.Images, stores.Jobs, batch, logger)

	if *stats {
		s, err := d.Stats(ctx)
		if err != nil {
			log.Fatalf("stats: %v", err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			log.Fatalf("encode stats: %v", err)
		}
		return
	}

	poll := cfg.Worker.PollInterval
	if *pollInterval > 0 {
		poll = *pollInterval
	}

	runCycle := func() {
		result, err := d.RunCycle(ctx)
		if err != nil {
			logger.Error("dispatch cycle failed", "error", err)
			return
		}
		logger.Info("dispatch cycle complete",
			"preprocess", result.Preprocess,
			"primary_decode", result.PrimaryDecode,
			"fallback_decode", result.FallbackDecode,
			"reaped", result.Reaped,
		)
	}

	if *once {
		runCycle()
		return
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	runCycle()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("dispatcher shut down")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}
