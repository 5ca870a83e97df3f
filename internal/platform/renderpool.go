package platform

import (
	"context"
	"fmt"

	"caps-bot/internal/constants"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// RenderPool bounds concurrent banner renders. Banner generation is the one
// CPU-bound step in the engine and must never stall session goroutines beyond
// its own timeout.
type RenderPool struct {
	renderer BannerRenderer
	sem      *semaphore.Weighted
	logger   zerolog.Logger
}

func NewRenderPool(renderer BannerRenderer, logger zerolog.Logger) *RenderPool {
	return &RenderPool{
		renderer: renderer,
		sem:      semaphore.NewWeighted(constants.BannerWorkers),
		logger:   logger.With().Str("component", "render_pool").Logger(),
	}
}

// Render dispatches a banner render to the pool and awaits the result.
func (p *RenderPool) Render(ctx context.Context, teamNames [2]string, scores [2]int, winnerNames []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.BannerTimeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("render pool acquire: %w", err)
	}

	type result struct {
		banner []byte
		err    error
	}
	done := make(chan result, 1)

	go func() {
		defer p.sem.Release(1)
		banner, err := p.renderer.Render(ctx, teamNames, scores, winnerNames)
		done <- result{banner: banner, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("banner render: %w", res.err)
		}
		return res.banner, nil
	case <-ctx.Done():
		p.logger.Warn().Err(ctx.Err()).Msg("banner render abandoned")
		return nil, ctx.Err()
	}
}
