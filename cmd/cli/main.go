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

// Command cli is a thin client over the review API's HTTP surface
// (internal/httpapi), for operators working a manual-review queue from a
// terminal.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("barcode-pipeline cli 0.1.0")
	case "review":
		runReview(args)
	case "get":
		if len(args) < 1 {
			fmt.Fprintln(os.Stderr, "Usage: cli get <image_id>")
			os.Exit(1)
		}
		runGet(args[0])
	case "resolve":
		runResolve(args)
	case "stats":
		runStats(args)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: cli <command> [args]")
	fmt.Println("  version                         - print version")
	fmt.Println("  review [--batch-id=ID] [--limit=N]   - list images awaiting manual review")
	fmt.Println("  get <image_id>                  - show an image and its detections")
	fmt.Println("  resolve <image_id> --action=choose|no_barcode|skip [--detection-id=ID] [--reviewer=NAME]")
	fmt.Println("  stats [--batch-id=ID]            - print pipeline stats")
}

func runReview(args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "restrict to a batch")
	limit := fs.Int("limit", 50, "max images to list")
	fs.Parse(args)

	out, err := listReview(*batchID, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "review: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runGet(imageID string) {
	out, err := getImage(imageID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	action := fs.String("action", "", "choose|no_barcode|skip")
	detectionID := fs.String("detection-id", "", "required for --action=choose")
	reviewer := fs.String("reviewer", "", "reviewer identity")
	// flag parsing stops at the first non-flag argument, so take a leading
	// image id off before parsing the flags that follow it.
	var imageID string
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		imageID, args = args[0], args[1:]
	}
	fs.Parse(args)
	if imageID == "" && fs.NArg() > 0 {
		imageID = fs.Arg(0)
	}
	if imageID == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli resolve <image_id> --action=... [--detection-id=...] [--reviewer=...]")
		os.Exit(1)
	}
	if *action == "" {
		fmt.Fprintln(os.Stderr, "--action is required")
		os.Exit(1)
	}

	out, err := resolveImage(imageID, *action, *detectionID, *reviewer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "sent as batch_id; the review API does not filter stats by batch")
	fs.Parse(args)

	out, err := getStats(*batchID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}
