package orchestrator

import (
	"context"

	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/cmn/config"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/service/devserver"
	"github.com/CatOfJupit3r/dungeon-crawler-ai/internal/telemetry"
)

// AuxFactory creates the auxiliary server once the session port is known.
type AuxFactory func(ctx context.Context, port int) (devserver.Server, error)

// NewAuxFactory returns the factory for the configured aux.kind. The static
// server exposes stats as metrics when stats is not nil.
func NewAuxFactory(cfg *config.Config, stats *telemetry.Stats) AuxFactory {
	return func(_ context.Context, port int) (devserver.Server, error) {
		switch cfg.Aux.Kind {
		case config.AuxKindNone:
			return devserver.Nop{}, nil

		case config.AuxKindCommand:
			return devserver.NewCommandServer(devserver.CommandOptions{
				Command:      cfg.Aux.Command,
				Host:         cfg.Aux.Host,
				Port:         port,
				Dir:          cfg.Core.WorkDir,
				ReadyPath:    cfg.Aux.ReadyPath,
				ReadyTimeout: cfg.Aux.ReadyTimeout,
				LogOutput:    cfg.App.LogOutput,
			}), nil

		default:
			opts := devserver.StaticOptions{
				Host:      cfg.Aux.Host,
				Port:      port,
				Root:      cfg.Aux.Root,
				SPA:       cfg.Aux.SPA,
				Debug:     cfg.Core.Debug,
				LogFormat: cfg.Core.LogFormat,
			}
			if stats != nil {
				opts.Registry = telemetry.NewRegistry(telemetry.NewCollector(config.Version, stats))
			}
			return devserver.NewStaticServer(opts), nil
		}
	}
}
