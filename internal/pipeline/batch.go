package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"rapidsprite/internal/storage"
)

// ErrDuplicateStem is returned for inputs whose artifacts would overwrite
// those of an earlier input in the same batch.
var ErrDuplicateStem = errors.New("another input maps to the same output name")

// RunAll runs independent pipelines for inputs, at most concurrency at a
// time. A failing input does not stop the others. Results are indexed like
// inputs and are nil for inputs that failed fatally; the error joins every
// per-input failure.
func (p *Pipeline) RunAll(ctx context.Context, inputs []string, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*Result, len(inputs))
	errs := make([]error, len(inputs))

	seen := make(map[string]string, len(inputs))
	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, input := range inputs {
		stem := storage.Stem(input)
		if prev, ok := seen[stem]; ok {
			errs[i] = fmt.Errorf("%s: %w (%s)", input, ErrDuplicateStem, prev)
			continue
		}
		seen[stem] = input

		i, input := i, input
		g.Go(func() error {
			res, err := p.Run(ctx, input)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", input, err)
			}
			return nil
		})
	}
	g.Wait()

	return results, errors.Join(errs...)
}
