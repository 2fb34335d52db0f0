package convert

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// BatchOptions extends FileOptions with the worker count.
type BatchOptions struct {
	FileOptions
	Workers int
}

// Batch converts every path concurrently. A failing file is logged and
// skipped; the other files are still converted. Results are returned in the
// order of paths, with nil entries for failures, together with all
// failures combined into one error.
//
// When opts.Stdout is set, documents are written to it in input order once
// all conversions have finished.
func Batch(ctx context.Context, paths []string, opts BatchOptions) ([]*Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]*Result, len(paths))
	buffers := make([]*bytes.Buffer, len(paths))
	var (
		mu   sync.Mutex
		errs *multierror.Error
	)

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}

			fo := opts.FileOptions
			if opts.Stdout != nil {
				buffers[i] = &bytes.Buffer{}
				fo.Stdout = buffers[i]
			}
			res, err := File(path, fo)
			if err != nil {
				log.WithField("component", "convert").Warnf("skipping %s: %v", path, err)
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			results[i] = res
			return nil
		})
	}
	eg.Wait()

	if opts.Stdout != nil {
		for i, b := range buffers {
			if results[i] == nil {
				continue
			}
			if _, err := io.Copy(opts.Stdout, b); err != nil {
				errs = multierror.Append(errs, err)
				break
			}
		}
	}
	return results, errs.ErrorOrNil()
}
