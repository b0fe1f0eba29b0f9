package scanner

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paddockhq/paddock/internal/config"
	"github.com/paddockhq/paddock/internal/core/domain"
	"github.com/paddockhq/paddock/internal/core/ports"
	"github.com/paddockhq/paddock/internal/logger"
)

const (
	InitEager = "eager"
	InitLazy  = "lazy"

	DefaultInitWorkers = 4
)

// Registry turns scanner config blocks into pipelines. Builtins are wired
// by name; RegisterFactory adds custom scanners before BuildPipelines runs.
type Registry struct {
	factories map[string]Factory
	logger    logger.StyledLogger
}

func NewRegistry(log logger.StyledLogger) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		logger:    log,
	}
}

// RegisterFactory installs a custom scanner under a name usable from
// config. Registering over a builtin name overrides it.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.factories[name] = factory
}

func (r *Registry) factory(name string) (Factory, error) {
	if factory, ok := r.factories[name]; ok {
		return factory, nil
	}
	return builtinFactory(name)
}

// BuildPipelines constructs both sides. Eager init warms every scanner up
// front on a bounded pool and fails startup on the first broken one; lazy
// init defers construction to first use, where a broken scanner surfaces as
// a per-scan failed outcome instead.
func (r *Registry) BuildPipelines(ctx context.Context, cfg config.ScanConfig) (*Pipeline, *Pipeline, error) {
	inputEntries, err := r.buildEntries(domain.ScanSideInput, cfg.InputScanners)
	if err != nil {
		return nil, nil, err
	}
	outputEntries, err := r.buildEntries(domain.ScanSideOutput, cfg.OutputScanners)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Init != InitLazy {
		all := make([]*entry, 0, len(inputEntries)+len(outputEntries))
		all = append(all, inputEntries...)
		all = append(all, outputEntries...)
		if err := r.warmUp(ctx, all, cfg.InitWorkers); err != nil {
			return nil, nil, err
		}
	}

	input := newPipeline(domain.ScanSideInput, inputEntries, r.logger)
	output := newPipeline(domain.ScanSideOutput, outputEntries, r.logger)

	r.logger.InfoWithCount("Scanner pipelines ready", len(inputEntries)+len(outputEntries),
		"input", len(inputEntries), "output", len(outputEntries), "init", initPolicy(cfg.Init))
	return input, output, nil
}

func (r *Registry) buildEntries(side domain.ScanSide, cfgs []config.ScannerConfig) ([]*entry, error) {
	entries := make([]*entry, 0, len(cfgs))

	for _, cfg := range cfgs {
		factory, err := r.factory(cfg.Name)
		if err != nil {
			return nil, err
		}

		e := &entry{
			name:     cfg.Name,
			blocking: blockingFor(cfg),
		}
		e.enabled.Store(cfg.IsEnabled())

		scannerCfg := cfg
		buildSide := side
		e.build = func() (scanFunc, error) {
			ts, err := factory(scannerCfg)
			if err != nil {
				return nil, err
			}
			if buildSide == domain.ScanSideInput {
				is := domain.InputScanner(inputTextScanner{ts})
				return func(ctx context.Context, prompt, _ string) (domain.ScanOutput, error) {
					return is.Scan(ctx, prompt)
				}, nil
			}
			os := domain.OutputScanner(outputTextScanner{ts})
			return func(ctx context.Context, prompt, output string) (domain.ScanOutput, error) {
				return os.Scan(ctx, prompt, output)
			}, nil
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// warmUp constructs scanners on a bounded pool, the same shape as the
// model discovery warmer. Cheap pattern scanners finish in microseconds;
// the pool matters once heavier scanners are registered.
func (r *Registry) warmUp(ctx context.Context, entries []*entry, workers int) error {
	if len(entries) == 0 {
		return nil
	}

	if workers <= 0 {
		workers = DefaultInitWorkers
	}
	if workers > len(entries) {
		workers = len(entries)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, e := range entries {
		eg.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			started := time.Now()
			if _, err := e.runner(); err != nil {
				return fmt.Errorf("scanner %s failed to initialise: %w", e.name, err)
			}
			r.logger.Debug("Scanner initialised", "scanner", e.name, "took", time.Since(started))
			return nil
		})
	}

	return eg.Wait()
}

func blockingFor(cfg config.ScannerConfig) bool {
	switch cfg.Name {
	case ScannerPII:
		return cfg.IsBlocking(false) && !cfg.ShouldRedact(true)
	default:
		return cfg.IsBlocking(true)
	}
}

func initPolicy(raw string) string {
	if raw == InitLazy {
		return InitLazy
	}
	return InitEager
}

var _ ports.ScanPipeline = (*Pipeline)(nil)
