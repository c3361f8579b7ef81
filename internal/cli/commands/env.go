package commands

import (
	"context"
	"fmt"

	"github.com/conduit-lang/trident/internal/cache"
	"github.com/conduit-lang/trident/internal/cli/config"
	"github.com/conduit-lang/trident/internal/cli/ui"
	"github.com/conduit-lang/trident/internal/logging"
	"github.com/conduit-lang/trident/internal/models"
	"github.com/conduit-lang/trident/internal/orm/dumper"
	"github.com/conduit-lang/trident/internal/orm/resolver"
	"github.com/conduit-lang/trident/internal/orm/schema"
	"github.com/conduit-lang/trident/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// environment is everything a command needs to read and write records
type environment struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *schema.Registry
	store    session.Store
	cache    cache.Cache
	resolver *resolver.Resolver
	dumper   *dumper.Dumper
}

// setup loads the configuration and opens the configured session store
func setup(cmd *cobra.Command) (*environment, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		ui.ConfigProblem(err, noColor).Write(cmd.ErrOrStderr())
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	registry, err := models.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("invalid model declarations: %w", err)
	}
	registry.SetLogger(logger)

	env := &environment{cfg: cfg, logger: logger, registry: registry}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Cache.Enabled {
		c, err := cache.NewRedisCache(ctx, cfg.RedisConfig())
		if err != nil {
			ui.Warning(fmt.Sprintf("cache disabled: %v", err), noColor).Write(cmd.ErrOrStderr())
		} else {
			env.cache = c
			opts = append(opts, session.WithCache(c))
		}
	}

	store, err := session.Open(ctx, cfg.SessionConfig(), opts...)
	if err != nil {
		env.Close()
		return nil, fmt.Errorf("failed to open %s session: %w", cfg.Session.Driver, err)
	}
	env.store = store

	env.resolver = resolver.New(registry, store, resolver.WithLogger(logger))
	env.dumper = dumper.New(env.resolver, dumper.WithLogger(logger))
	return env, nil
}

// model looks up a model type, reporting misspellings with suggestions
func (e *environment) model(cmd *cobra.Command, name string) (*schema.ModelType, error) {
	t, err := e.registry.Get(name)
	if err != nil {
		ui.UnknownModel(name, e.registry.List(), noColor).Write(cmd.ErrOrStderr())
		return nil, err
	}
	return t, nil
}

// Close releases the store and cache
func (e *environment) Close() error {
	var errs error
	if e.store != nil {
		errs = multierr.Append(errs, e.store.Close())
	}
	if e.cache != nil {
		errs = multierr.Append(errs, e.cache.Close())
	}
	_ = e.logger.Sync()
	return errs
}
