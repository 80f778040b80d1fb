package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/earn9/autopsy/internal/config"
	"github.com/earn9/autopsy/internal/coordination"
	"github.com/earn9/autopsy/internal/healthmonitor"
	"github.com/earn9/autopsy/internal/logger"
	"github.com/earn9/autopsy/internal/pid"
)

var (
	cfg     *config.Config
	monitor *healthmonitor.Monitor
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write pid file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove pid file")
		}
	}()

	coord, err := coordination.NewService(coordination.Config{Address: cfg.Consul.Address})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize coordination service")
	}

	monitorCfg := monitorConfig(cfg)
	gateway, err := healthmonitor.NewGateway(monitorCfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize persistence gateway")
	}

	monitor, err = healthmonitor.New(monitorCfg, coord, gateway)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize health monitor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if cfg.Enabled {
		setEnabled(ctx, true)
	}

	// Re-apply the enabled flag when the config file is edited
	config.Watch(func(newCfg *config.Config) {
		if newCfg.Enabled != monitor.IsEnabled() {
			setEnabled(ctx, newCfg.Enabled)
		}
	})

	<-ctx.Done()
	monitor.Close()
	logger.Info().Msg("Exiting...")
}

// setEnabled flips the monitor state and persists the setting so it
// survives restarts. An activation failure leaves the monitor disabled;
// the persisted flag is untouched so the next start retries.
func setEnabled(ctx context.Context, enabled bool) {
	if err := monitor.SetEnabled(ctx, enabled); err != nil {
		logger.Error().Err(err).Bool("enabled", enabled).Msg("failed to change health monitor state")
		return
	}
	if err := config.SaveEnabled(enabled); err != nil {
		logger.Warn().Err(err).Msg("failed to persist health monitor state")
	}
}

func monitorConfig(c *config.Config) healthmonitor.Config {
	monitorCfg := healthmonitor.DefaultConfig()
	monitorCfg.Database = healthmonitor.DatabaseConfig{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		Name:     c.Database.Name,
	}
	monitorCfg.WriteInterval = time.Duration(c.WriteInterval) * time.Minute
	monitorCfg.LockTimeout = time.Duration(c.LockTimeout) * time.Minute
	monitorCfg.MultiInstance = c.IsMultiInstance()

	return monitorCfg
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
