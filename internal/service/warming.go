package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

// warmConcurrency caps simultaneous upstream calls during a warm.
const warmConcurrency = 4

// Warmer prefetches weather and every category of places around a fixed
// list of points so the first sessions opened there are served from cache.
type Warmer struct {
	svc    *DiscoveryService
	logger *zap.Logger
}

// NewWarmer creates a Warmer over svc.
func NewWarmer(svc *DiscoveryService, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{svc: svc, logger: logger}
}

// Warm fetches each point's padded-bounds places for all categories plus its
// weather. It keeps going past individual failures and returns the first one.
func (w *Warmer) Warm(ctx context.Context, points []models.Coordinates) error {
	start := time.Now()
	w.logger.Info("warming cache", zap.Int("locations", len(points)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	var firstErr error
	errs := make(chan error, len(points)*(len(models.Categories)+1))
	for _, p := range points {
		p := p
		bounds := models.PadBounds(p, models.DefaultPad)
		for _, cat := range models.Categories {
			cat := cat
			g.Go(func() error {
				if _, err := w.svc.FetchPlaces(gctx, cat, bounds); err != nil {
					errs <- fmt.Errorf("warm %s at %.4f,%.4f: %w", cat, p.Lat, p.Lng, err)
				}
				return nil
			})
		}
		g.Go(func() error {
			if _, err := w.svc.FetchWeather(gctx, p); err != nil {
				errs <- fmt.Errorf("warm weather at %.4f,%.4f: %w", p.Lat, p.Lng, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
		failed++
	}
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(points)),
		zap.Int("errors", failed),
		zap.Duration("duration", time.Since(start)))
	return firstErr
}

// WarmPeriodic runs Warm immediately and then every interval until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, points []models.Coordinates, interval time.Duration) error {
	if err := w.Warm(ctx, points); err != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, points); err != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
