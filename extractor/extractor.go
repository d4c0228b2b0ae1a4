// Copyright (c) 2026, the cpdeploy contributors
//
// SPDX-License-Identifier: Apache-2.0

package extractor

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/credprov/cpdeploy/internal/retry"
	iu "github.com/credprov/cpdeploy/internal/util"
	"github.com/credprov/cpdeploy/metrics"
	"github.com/credprov/cpdeploy/model"
)

// Extractor selectively extracts bundle entries into a destination
// directory, skipping entries whose destination already has the entry's
// length. Running it twice over an unchanged bundle writes nothing on
// the second pass.
type Extractor struct {
	log model.Logger
}

func New(log model.Logger) (*Extractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Extractor{log: log}, nil
}

// plan pairs an archive entry with the destination it will be written to
type plan struct {
	entry *zip.File
	dest  string
}

// Extract writes every entry of the archive whose name matches the filter
// set into destination, restoring each entry's modification time.
//
// Entries already current by length are skipped. On failure every file
// written during this call is removed again before the error is
// returned, files from earlier runs are never touched. A canceled
// context stops enumeration before the next entry without triggering
// rollback.
func (e *Extractor) Extract(ctx context.Context, archive string, destination string, filters []string) error {
	rc, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("could not open bundle %s: %w", archive, err)
	}
	defer rc.Close()

	plans, err := e.planEntries(rc, destination, filters)
	if err != nil {
		return err
	}

	var written []string

	for _, p := range plans {
		if ctx.Err() != nil {
			e.log.Warn("Extraction interrupted", "error", ctx.Err())
			return ctx.Err()
		}

		wrote, err := e.extractEntry(p)
		if wrote {
			written = append(written, p.dest)
		}
		if err != nil {
			e.rollback(written)
			return err
		}
	}

	return nil
}

// planEntries computes the ordered extraction plan up front, one value
// per qualifying archive entry
func (e *Extractor) planEntries(rc *zip.ReadCloser, destination string, filters []string) ([]plan, error) {
	var plans []plan

	for _, entry := range rc.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		if !model.MatchesFilters(entry.Name, filters) {
			e.log.Debug("Entry does not match filters", "entry", entry.Name)
			continue
		}

		if !filepath.IsLocal(filepath.FromSlash(entry.Name)) {
			return nil, fmt.Errorf("%w: %s", model.ErrUnsafePath, entry.Name)
		}

		plans = append(plans, plan{
			entry: entry,
			dest:  filepath.Join(destination, filepath.FromSlash(entry.Name)),
		})
	}

	return plans, nil
}

// extractEntry writes a single entry, it reports whether the destination
// file was created so the caller can roll it back on later failure
func (e *Extractor) extractEntry(p plan) (bool, error) {
	length := int64(p.entry.UncompressedSize64)

	if size, ok := iu.FileSize(p.dest); ok && size == length {
		e.log.Info("Already up to date", "file", p.dest)
		metrics.FilesSkippedCount.WithLabelValues().Inc()
		return false, nil
	}

	err := os.MkdirAll(filepath.Dir(p.dest), 0755)
	if err != nil {
		return false, err
	}

	src, err := p.entry.Open()
	if err != nil {
		return false, fmt.Errorf("could not read entry %s: %w", p.entry.Name, err)
	}
	defer src.Close()

	out, err := os.OpenFile(p.dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}

	copied, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		return true, fmt.Errorf("could not extract %s: %w", p.entry.Name, err)
	}

	err = out.Close()
	if err != nil {
		return true, err
	}

	// the restored timestamp is what makes the next run's length based
	// up to date check meaningful
	err = os.Chtimes(p.dest, p.entry.Modified, p.entry.Modified)
	if err != nil {
		return true, err
	}

	e.log.Info("Extracted", "file", p.dest, "bytes", copied)
	metrics.FilesExtractedCount.WithLabelValues().Inc()

	return true, nil
}

// rollback removes every file written during the current call, deletions
// run concurrently and are each retried, their failures are logged and
// swallowed so the originating error is never masked
func (e *Extractor) rollback(written []string) {
	if len(written) == 0 {
		return
	}

	e.log.Warn("Removing files written during failed extraction", "count", len(written))

	g := &errgroup.Group{}

	for _, path := range written {
		g.Go(func() error {
			err := retry.Cleanup.Do(context.Background(), func(int) error {
				err := os.Remove(path)
				if errors.Is(err, os.ErrNotExist) {
					return nil
				}
				return err
			})
			if err != nil {
				e.log.Warn("Could not remove file during rollback", "file", path, "error", err)
				return nil
			}

			metrics.RollbackDeleteCount.WithLabelValues().Inc()

			return nil
		})
	}

	g.Wait()
}
