package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/CemAyyildiz/taskFlow/internal/metric"
	applog "github.com/CemAyyildiz/taskFlow/internal/zerolog"
	"github.com/CemAyyildiz/taskFlow/pkg/api"
	"github.com/CemAyyildiz/taskFlow/pkg/config"
	"github.com/CemAyyildiz/taskFlow/pkg/coordinator"
	"github.com/CemAyyildiz/taskFlow/pkg/event"
	"github.com/CemAyyildiz/taskFlow/pkg/monitor"
	"github.com/CemAyyildiz/taskFlow/pkg/settlement"
	"github.com/CemAyyildiz/taskFlow/pkg/task"
)

// App holds all the dependencies
type App struct {
	ctx        context.Context
	cfgPath    string
	privateKey string
	debug      bool

	cfg *config.Config

	registry     *task.Registry
	events       *event.Broadcaster
	settlement   settlement.Client
	coordinator  *coordinator.Coordinator
	monitor      *monitor.Monitor
	apiServer    *api.Server
	metricServer *metric.Server
}

// New creates a new application instance
func New(ctx context.Context) *App {
	return &App{
		ctx: ctx,
	}
}

// Run starts the application with the provided configuration
func (a *App) Run(cfgPath, privateKey string, debug bool) error {
	a.cfgPath = cfgPath
	a.privateKey = privateKey
	a.debug = debug

	// Initialize all components
	if err := a.initConfig(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	a.initLogger()
	a.initMetrics()

	if err := a.initSettlement(); err != nil {
		return fmt.Errorf("failed to initialize settlement: %w", err)
	}

	if err := a.initCore(); err != nil {
		return fmt.Errorf("failed to initialize core: %w", err)
	}

	if err := a.initMonitor(); err != nil {
		return fmt.Errorf("failed to initialize monitor: %w", err)
	}

	if err := a.initAPI(); err != nil {
		return fmt.Errorf("failed to initialize API: %w", err)
	}

	log.Info().Msg("taskflow node started successfully")

	// Wait forever
	select {}
}

// Shutdown gracefully stops the application
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.apiServer != nil {
		if err := a.apiServer.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("API server shutdown error")
		}
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.events != nil {
		a.events.Close()
	}
	if a.settlement != nil {
		a.settlement.Close()
	}
	return nil
}

// initConfig loads application configuration
func (a *App) initConfig() error {
	if a.cfgPath == "" {
		a.cfg = config.DefaultConfig()
		return nil
	}
	var err error
	a.cfg, err = config.LoadConfig(a.cfgPath)
	return err
}

func (a *App) initLogger() {
	level := a.cfg.Logging.Level
	if a.debug {
		level = "debug"
	}
	applog.InitLogger(level, a.cfg.Logging.Format)
}

// initMetrics starts the metrics server
func (a *App) initMetrics() {
	if !a.cfg.Metrics.Enabled {
		return
	}
	a.metricServer = metric.New(&metric.Config{
		Port: a.cfg.Metrics.Port,
	})
	go func() {
		if err := a.metricServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to start metric server")
		}
	}()
}

// initSettlement dials the chain when a key is configured. Without a
// key the node runs in degraded mode: the lifecycle works but payouts
// report the missing configuration.
func (a *App) initSettlement() error {
	key := a.cfg.Chain.PrivateKey
	if a.privateKey != "" {
		key = a.privateKey
	}
	if key == "" {
		log.Warn().Msg("no platform key configured, payouts disabled")
		return nil
	}

	client, err := settlement.NewEthClient(settlement.Config{
		RPCEndpoint:    a.cfg.Chain.RPCURL,
		ChainID:        a.cfg.Chain.ID,
		PrivateKey:     key,
		ConfirmTimeout: config.Duration(a.cfg.Chain.ConfirmTimeout, 90*time.Second),
	})
	if err != nil {
		return err
	}
	a.settlement = client
	log.Info().Str("wallet", client.From()).Str("rpc", a.cfg.Chain.RPCURL).Msg("settlement client ready")
	return nil
}

func (a *App) initCore() error {
	a.registry = task.NewRegistry()
	a.events = event.NewBroadcaster()

	coord, err := coordinator.New(coordinator.Config{
		Store:      a.registry,
		Settlement: a.settlement,
		Events:     a.events,
	})
	if err != nil {
		return err
	}
	a.coordinator = coord
	return nil
}

func (a *App) initMonitor() error {
	var balance monitor.BalanceFunc
	if a.settlement != nil {
		balance = func(ctx context.Context) (string, error) {
			bal, err := a.coordinator.Balance(ctx)
			if err != nil {
				return "", err
			}
			return bal.String(), nil
		}
	}

	m, err := monitor.New(monitor.Config{
		Interval:                 config.Duration(a.cfg.Monitor.Interval, 10*time.Second),
		StaleClaimThreshold:      config.Duration(a.cfg.Monitor.StaleClaimThreshold, 30*time.Minute),
		AwaitingPaymentThreshold: config.Duration(a.cfg.Monitor.AwaitingPaymentThreshold, 2*time.Minute),
		Store:                    a.registry,
		Events:                   a.events,
		Balance:                  balance,
	})
	if err != nil {
		return err
	}
	a.monitor = m
	a.monitor.Start(a.ctx)
	return nil
}

// initAPI starts the HTTP API server
func (a *App) initAPI() error {
	handler, err := api.NewHandler(api.Config{
		Lifecycle: a.coordinator,
		Tasks:     a.registry,
		Events:    a.events,
	})
	if err != nil {
		return fmt.Errorf("failed to create API handler: %w", err)
	}

	a.apiServer = api.NewServer(handler, a.cfg.Server.Host, a.cfg.Server.Port)
	go func() {
		if err := a.apiServer.Start(); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}
