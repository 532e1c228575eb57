// Package blobpath builds the blob container paths every stage handler
// reads from and writes to. The layout is part of the external contract:
// changing a format string here changes where artifacts live.
package blobpath

import (
	"fmt"
	"strings"

	pkgerrors "barcode-pipeline/pkg/errors"
)

const (
	Incoming     = "incoming"
	Archived     = "archived"
	Preprocessed = "preprocessed"
	Processed    = "processed"
	Failed       = "failed"
	ManualReview = "manual-review"
)

// IncomingPath is where the uploader writes and Preprocess consumes from.
func IncomingPath(batchID, sourceFilename string) string {
	return fmt.Sprintf("%s/%s/%s", Incoming, batchID, sourceFilename)
}

// ArchivedPath is where Preprocess moves the original after normalizing.
func ArchivedPath(batchID, sourceFilename string) string {
	return fmt.Sprintf("%s/%s/%s", Archived, batchID, sourceFilename)
}

// PreprocessedPath is where decoders read the canonical (0°) normalized
// artifact.
func PreprocessedPath(batchID, imageID string) string {
	return fmt.Sprintf("%s/%s/%s.jpg", Preprocessed, batchID, imageID)
}

// PreprocessedRotationPath is where a non-zero rotation variant of the
// normalized artifact lives; the 0° rotation uses PreprocessedPath
// instead, since spec.md §6 names only the singular canonical path and
// the 0° variant is always produced.
func PreprocessedRotationPath(batchID, imageID string, degrees int) string {
	if degrees == 0 {
		return PreprocessedPath(batchID, imageID)
	}
	return fmt.Sprintf("%s/%s/%s_rot%d.jpg", Preprocessed, batchID, imageID, degrees)
}

// ProcessedPath is the terminal-success location.
func ProcessedPath(batchID, imageID string) string {
	return fmt.Sprintf("%s/%s/%s.jpg", Processed, batchID, imageID)
}

// FailedPath is the terminal-failure location.
func FailedPath(batchID, imageID string) string {
	return fmt.Sprintf("%s/%s/%s.jpg", Failed, batchID, imageID)
}

// ManualReviewPath holds artifacts awaiting human adjudication.
func ManualReviewPath(batchID, imageID string) string {
	return fmt.Sprintf("%s/%s/%s.jpg", ManualReview, batchID, imageID)
}

// Folder returns the first path component.
func Folder(path string) string {
	parts := strings.SplitN(path, "/", 2)
	return parts[0]
}

// ExtractBatchAndImageID parses a path of the form "<folder>/<batch>/<file>"
// and returns the batch and image id, stripping extension and the "_norm"
// suffix some legacy artifacts carry.
func ExtractBatchAndImageID(path string) (batchID, imageID string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return "", "", pkgerrors.WithKind(fmt.Errorf("invalid blob path %q", path), pkgerrors.KindInputInvalid)
	}
	batchID = parts[1]
	filename := parts[2]
	if dot := strings.LastIndex(filename, "."); dot >= 0 {
		filename = filename[:dot]
	}
	filename = strings.TrimSuffix(filename, "_norm")
	return batchID, filename, nil
}
