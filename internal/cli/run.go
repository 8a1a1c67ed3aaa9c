package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/GabrielNunesIT/emitterkit/internal/builtin"
	"github.com/GabrielNunesIT/emitterkit/internal/config"
	"github.com/GabrielNunesIT/emitterkit/internal/metrics"
	"github.com/GabrielNunesIT/emitterkit/internal/pipeline"
	"github.com/GabrielNunesIT/emitterkit/internal/statestore"
)

// NewRunCmd creates the run command.
func NewRunCmd(cfgFile, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the emitters and chroniclers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, cfgFile, logLevel)
		},
	}

	cmd.Flags().String("state", "", "state database path (enables state persistence)")
	cmd.Flags().Bool("no-restore", false, "do not recreate components from stored state")
	cmd.Flags().String("metrics-address", "", "metrics listen address (enables the metrics server)")
	cmd.Flags().Bool("drop-on-full", false, "drop events instead of blocking when the buffer is full")

	// Hot-reload flag
	cmd.Flags().Bool("hot-reload", true, "enable hot-reload of config file")

	return cmd
}

func runPipeline(cmd *cobra.Command, cfgFile, logLevel *string) error {
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	applyCLIOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := SetupLogging(resolveLogLevel(*logLevel, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []pipeline.Option

	if cfg.State.Enabled {
		store, err := statestore.Open(ctx, cfg.State.Path)
		if err != nil {
			return fmt.Errorf("opening state store: %w", err)
		}
		defer store.Close()
		opts = append(opts, pipeline.WithStateStore(store))
		log.Infof("state persistence enabled: path=%s, restore=%t", cfg.State.Path, cfg.State.Restore)
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		srv := metrics.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, m, log)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
		defer srv.Stop(context.Background())
		opts = append(opts, pipeline.WithMetrics(m))
	}

	p, err := pipeline.New(ctx, cfg, builtin.NewRegistry(log), log, opts...)
	if err != nil {
		return fmt.Errorf("creating pipeline: %w", err)
	}

	log.Infof("starting emitterkit: emitters=%d, chroniclers=%d",
		p.EmitterCount(), p.ChroniclerCount())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	hotReloadEnabled, _ := cmd.Flags().GetBool("hot-reload")
	if *cfgFile != "" && hotReloadEnabled {
		startConfigWatcher(ctx, cmd, cfgFile, p, log)
	}

	go handleSignals(ctx, cancel, sigChan, cmd, cfgFile, p, log)

	notify(log, daemon.SdNotifyReady)

	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline error: %w", err)
	}

	log.Info("emitterkit stopped")
	return nil
}

// notify reports state to systemd when running under a notify unit.
func notify(log logger.ILogger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warningf("systemd notify failed: %v", err)
		return
	}
	if sent {
		log.Debugf("systemd notified: %s", state)
	}
}

func resolveLogLevel(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.LogLevel
}

func reconfigure(ctx context.Context, cmd *cobra.Command, p *pipeline.Pipeline, newCfg *config.Config, log logger.ILogger) {
	applyCLIOverrides(cmd, newCfg)
	if err := newCfg.Validate(); err != nil {
		log.Errorf("reloaded config is invalid: %v", err)
		return
	}

	notify(log, daemon.SdNotifyReloading)
	defer notify(log, daemon.SdNotifyReady)

	if err := p.Reconfigure(ctx, newCfg); err != nil {
		log.Errorf("reconfigure failed: %v", err)
	}
}

func startConfigWatcher(ctx context.Context, cmd *cobra.Command, cfgFile *string, p *pipeline.Pipeline, log logger.ILogger) {
	watcher := config.NewConfigWatcher(*cfgFile, log)
	if err := watcher.Start(ctx); err != nil {
		log.Warningf("failed to start config watcher: %v", err)
		return
	}

	log.Infof("hot-reload enabled: config=%s", *cfgFile)

	go func() {
		for {
			select {
			case newCfg := <-watcher.Changes():
				reconfigure(ctx, cmd, p, newCfg, log)
			case err := <-watcher.Errors():
				log.Errorf("config watcher error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func handleSignals(ctx context.Context, cancel context.CancelFunc, sigChan <-chan os.Signal, cmd *cobra.Command, cfgFile *string, p *pipeline.Pipeline, log logger.ILogger) {
	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGHUP:
				log.Info("received SIGHUP, reloading config")
				newCfg, err := config.Load(*cfgFile)
				if err != nil {
					log.Errorf("failed to reload config: %v", err)
					continue
				}
				reconfigure(ctx, cmd, p, newCfg, log)
			case syscall.SIGINT, syscall.SIGTERM:
				log.Infof("received shutdown signal: %v", sig)
				notify(log, daemon.SdNotifyStopping)
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func applyCLIOverrides(cmd *cobra.Command, cfg *config.Config) {
	if path, _ := cmd.Flags().GetString("state"); path != "" {
		cfg.State.Enabled = true
		cfg.State.Path = path
	}
	if v, _ := cmd.Flags().GetBool("no-restore"); v {
		cfg.State.Restore = false
	}
	if addr, _ := cmd.Flags().GetString("metrics-address"); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = addr
	}
	if v, _ := cmd.Flags().GetBool("drop-on-full"); v {
		cfg.Pipeline.DropOnFullBuffer = true
	}
}
