package cmds

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/genesis/internal/config"
	"github.com/go-go-golems/genesis/pkg/backend"
	"github.com/go-go-golems/genesis/pkg/broadcast"
	"github.com/go-go-golems/genesis/pkg/events"
	"github.com/go-go-golems/genesis/pkg/logging"
	"github.com/go-go-golems/genesis/pkg/orchestrator"
	"github.com/go-go-golems/genesis/pkg/registry"
	"github.com/go-go-golems/genesis/pkg/server"
)

var current *config.Config

// SetConfig hands the loaded configuration to the subcommands.
func SetConfig(c *config.Config) {
	current = c
}

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and live status broadcaster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, current)
		},
	}

	cmd.Flags().String("host", "127.0.0.1", "Address to listen on")
	cmd.Flags().Int("port", 8000, "Port to listen on")
	cmd.Flags().String("provider", "", "Initial provider")
	cmd.Flags().String("mode", "", "Initial mystical mode")
	cmd.Flags().String("catalog", "", "Provider catalog YAML overlaying the built-in one")
	cmd.Flags().Duration("broadcast-interval", broadcast.DefaultInterval, "Interval between periodic status broadcasts")

	cobra.CheckErr(viper.BindPFlag("server.host", cmd.Flags().Lookup("host")))
	cobra.CheckErr(viper.BindPFlag("server.port", cmd.Flags().Lookup("port")))
	cobra.CheckErr(viper.BindPFlag("backend.catalog", cmd.Flags().Lookup("catalog")))
	cobra.CheckErr(viper.BindPFlag("broadcast.interval", cmd.Flags().Lookup("broadcast-interval")))

	return cmd
}

func runServe(cmd *cobra.Command, c *config.Config) error {
	if c == nil {
		return errors.New("configuration not loaded")
	}
	if p, _ := cmd.Flags().GetString("provider"); p != "" {
		c.Engine.Provider = p
	}
	if m, _ := cmd.Flags().GetString("mode"); m != "" {
		c.Engine.Mode = m
	}

	defaults, err := c.EngineConfiguration()
	if err != nil {
		return errors.Wrap(err, "invalid engine configuration")
	}
	reg, err := registry.New(defaults)
	if err != nil {
		return err
	}

	catalog, err := loadCatalog(c.Backend.Catalog)
	if err != nil {
		return err
	}
	engine, err := backend.NewFactory(catalog, backend.WithRequestTimeout(c.Backend.Timeout)).CreateEngine(defaults)
	if err != nil {
		return errors.Wrap(err, "could not initialize generation backend")
	}

	router, err := events.NewEventRouter(events.WithLogger(logging.NewWatermill(log.Logger)))
	if err != nil {
		return errors.Wrap(err, "could not create event router")
	}
	defer func() {
		_ = router.Close()
	}()

	var orch *orchestrator.Orchestrator
	bcast := broadcast.New(
		func() interface{} { return orch.GetStatus() },
		broadcast.WithInterval(c.Broadcast.Interval),
		broadcast.WithSendTimeout(c.Broadcast.SendTimeout),
	)
	orch = orchestrator.New(reg, engine,
		orchestrator.WithCommitSink(events.NewWatermillCommitSink(router.Publisher, events.TopicCommitted)),
	)
	router.AddHandler("broadcast-on-commit", events.TopicCommitted, events.CommitHandler(func(e events.CommitEvent) {
		log.Debug().Str("reason", string(e.Reason)).Uint64("version", e.Version).Msg("commit observed, pushing status")
		bcast.Notify()
	}))

	srv := server.New(orch, bcast, server.WithOriginPatterns(c.Server.OriginPatterns...))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		return bcast.Run(ctx)
	})
	eg.Go(func() error {
		select {
		case <-router.Running():
		case <-ctx.Done():
			return nil
		}
		return srv.Run(ctx, c.Addr())
	})

	log.Info().
		Str("addr", c.Addr()).
		Str("provider", string(defaults.Provider)).
		Str("mode", string(defaults.Mode)).
		Msg("genesis awakened")
	return eg.Wait()
}

func loadCatalog(path string) (*backend.Catalog, error) {
	if path == "" {
		return backend.DefaultCatalog()
	}
	c, err := backend.LoadCatalog(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load catalog %s", path)
	}
	return c, nil
}
