package forecast

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// chunkSize is the number of trials drawn from one stream. The chunk layout
// depends only on the trial count, so the estimate is reproducible for a seed
// whatever the worker count.
const chunkSize = 2048

// Sampler runs the Monte-Carlo estimate of the defect total.
type Sampler struct {
	Trials  int
	Seed    uint64
	Workers int
}

// Mean draws Trials samples from Normal(mean, std), clamps each at zero and
// returns their average.
func (s Sampler) Mean(ctx context.Context, mean, std float64) (float64, error) {
	if s.Trials <= 0 {
		return 0, fmt.Errorf("%w: trials must be positive, got %d", ErrInvalidParameter, s.Trials)
	}
	if math.IsNaN(mean) || math.IsNaN(std) || std < 0 {
		return 0, fmt.Errorf("%w: normal(%v, %v)", ErrInvalidParameter, mean, std)
	}
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}

	chunks := (s.Trials + chunkSize - 1) / chunkSize
	sums := make([]float64, chunks)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < chunks; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := chunkSize
			if last := s.Trials - i*chunkSize; last < n {
				n = last
			}
			r := rand.New(rand.NewPCG(s.Seed, uint64(i)))
			var sum float64
			for j := 0; j < n; j++ {
				if d := r.NormFloat64()*std + mean; d > 0 {
					sum += d
				}
			}
			sums[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to run monte carlo trials: %w", err)
	}
	// floats.Sum adds in index order, so the total does not depend on scheduling.
	return floats.Sum(sums) / float64(s.Trials), nil
}
