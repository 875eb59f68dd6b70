package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/medledger/ledger/app/services/node/handlers"
	"github.com/medledger/ledger/app/services/node/ingest"
	"github.com/medledger/ledger/foundation/events"
	"github.com/medledger/ledger/foundation/ledger/block"
	"github.com/medledger/ledger/foundation/ledger/chain"
	"github.com/medledger/ledger/foundation/ledger/pow"
	"github.com/medledger/ledger/foundation/ledger/state"
	"github.com/medledger/ledger/foundation/logger"
	"github.com/medledger/ledger/foundation/registry"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
			PrivateHost     string        `conf:"default:0.0.0.0:9080"`
		}
		Ledger struct {
			DeviceID       string        `conf:"default:node1"`
			DataDir        string        `conf:"default:zledger"`
			Difficulty     int           `conf:"default:3"`
			TargetTime     float64       `conf:"default:10"`
			SaveInterval   time.Duration `conf:"default:1m"`
			KnownPeers     []string      `conf:""`
			DeviceFolder   string        `conf:"default:zledger/devices/"`
			MaxTemperature float64       `conf:"default:70"`
			MaxCPUPercent  float64       `conf:"default:80"`
			Mine           bool          `conf:"default:true"`
		}
		MQTT struct {
			Broker   string `conf:""`
			Topic    string `conf:"default:medledger/events"`
			ClientID string `conf:""`
			CAFile   string `conf:""`
			CertFile string `conf:""`
			KeyFile  string `conf:""`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Device Registry Support

	// The registry package provides display names for device identifiers.
	// The names come from the files in the devices folder.
	reg, err := registry.New(cfg.Ledger.DeviceFolder)
	if err != nil {
		return fmt.Errorf("unable to load device registry: %w", err)
	}

	// Logging the devices for documentation in the logs.
	for deviceID, name := range reg.Copy() {
		log.Infow("startup", "status", "registry", "name", name, "device", deviceID)
	}

	// =========================================================================
	// Ledger Support

	// The ledger packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	ch := chain.New(chain.Config{
		Difficulty: cfg.Ledger.Difficulty,
		EvHandler:  ev,
	})

	for _, host := range cfg.Ledger.KnownPeers {
		ch.RegisterPeer(host)
	}

	// The state value manages the chain's presence on disk. If no file
	// exists yet, the node starts a fresh chain from its genesis block.
	st, err := state.New(state.Config{
		Chain:        ch,
		DataDir:      cfg.Ledger.DataDir,
		SaveInterval: cfg.Ledger.SaveInterval,
		EvHandler:    ev,
	})
	if err != nil {
		return fmt.Errorf("unable to construct state: %w", err)
	}

	loaded, err := st.Load()
	if err != nil {
		return fmt.Errorf("unable to load chain: %w", err)
	}
	if !loaded {
		ch.Genesis()
		log.Infow("startup", "status", "no chain file found, started from genesis")
	}
	st.StartAutoSave()
	defer st.StopAutoSave()

	// =========================================================================
	// Mining Support

	engine := pow.New(pow.Config{
		InitialDifficulty: float64(cfg.Ledger.Difficulty),
		TargetTime:        cfg.Ledger.TargetTime,
		EvHandler:         ev,
	})

	miner := pow.NewMiner(pow.MinerConfig{
		Chain:       ch,
		Engine:      engine,
		Beneficiary: cfg.Ledger.DeviceID,
		AfterMine: func(b block.Block) error {
			return st.Save()
		},
		EvHandler: ev,
	})
	if cfg.Ledger.Mine {
		miner.Start()
	}
	defer miner.Shutdown()

	// The monitor watches device temperature and CPU load and throttles
	// the engine so a field device doesn't cook itself mining.
	monitor := pow.NewMonitor(pow.MonitorConfig{
		Engine:         engine,
		Sampler:        pow.DeviceSampler{},
		MaxTemperature: cfg.Ledger.MaxTemperature,
		MaxCPUPercent:  cfg.Ledger.MaxCPUPercent,
		EvHandler:      ev,
	})
	monitor.Start()
	defer monitor.Shutdown()

	// =========================================================================
	// MQTT Ingest Support

	// When a broker is configured the node subscribes for sensor events
	// and records them on the chain as they arrive.
	if cfg.MQTT.Broker != "" {
		ing, err := ingest.New(ingest.Config{
			Broker:    cfg.MQTT.Broker,
			Topic:     cfg.MQTT.Topic,
			ClientID:  cfg.MQTT.ClientID,
			CAFile:    cfg.MQTT.CAFile,
			CertFile:  cfg.MQTT.CertFile,
			KeyFile:   cfg.MQTT.KeyFile,
			Chain:     ch,
			State:     st,
			DeviceID:  cfg.Ledger.DeviceID,
			EvHandler: ev,
		})
		if err != nil {
			return fmt.Errorf("unable to construct mqtt ingest: %w", err)
		}
		if err := ing.Start(); err != nil {
			return fmt.Errorf("unable to start mqtt ingest: %w", err)
		}
		defer ing.Shutdown()
		log.Infow("startup", "status", "mqtt ingest started", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, handlers.DebugStandardLibraryMux()); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	muxCfg := handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		Chain:    ch,
		State:    st,
		Engine:   engine,
		Miner:    miner,
		Monitor:  monitor,
		Registry: reg,
		Evts:     evts,
		DeviceID: cfg.Ledger.DeviceID,
	}

	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      handlers.PublicMux(muxCfg),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Start Private Service

	log.Infow("startup", "status", "initializing V1 private API support")

	private := http.Server{
		Addr:         cfg.Web.PrivateHost,
		Handler:      handlers.PrivateMux(muxCfg),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "private api router started", "host", private.Addr)
		serverErrors <- private.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancelPri := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPri()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown private API started")
		if err := private.Shutdown(ctx); err != nil {
			private.Close()
			return fmt.Errorf("could not stop private service gracefully: %w", err)
		}

		// Give outstanding requests a deadline for completion.
		ctx, cancelPub := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancelPub()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown public API started")
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop public service gracefully: %w", err)
		}

		// One last save so a clean shutdown never loses mined blocks.
		if err := st.Save(); err != nil {
			log.Errorw("shutdown", "status", "final save", "ERROR", err)
		}
	}

	return nil
}
