package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/facegate/cmd"
	"github.com/smazurov/facegate/internal/api"
	"github.com/smazurov/facegate/internal/capture"
	"github.com/smazurov/facegate/internal/config"
	"github.com/smazurov/facegate/internal/detect"
	"github.com/smazurov/facegate/internal/events"
	"github.com/smazurov/facegate/internal/led"
	"github.com/smazurov/facegate/internal/logging"
	"github.com/smazurov/facegate/internal/recorder"
	"github.com/smazurov/facegate/internal/sink"
	"github.com/smazurov/facegate/internal/systemd"
	"github.com/smazurov/facegate/internal/version"
)

// shutdownTimeout bounds finalizing a live recording when the service stops.
const shutdownTimeout = 10 * time.Second

// service is the long-running API host. Components are built when the
// server starts so subcommands never touch the camera or classifier.
type service struct {
	opts   *cmd.Options
	logger *slog.Logger
	notify *systemd.Notifier

	mu       sync.Mutex
	stopping bool
	cancel   context.CancelFunc
	detector *detect.Detector
	rec      *recorder.Controller
	server   *api.Server
	leds     *led.Manager
	watcher  *config.Watcher[logging.Config]
}

func newService(opts *cmd.Options) *service {
	return &service{
		opts:   opts,
		logger: logging.GetLogger("main"),
		notify: systemd.NewNotifier(logging.GetLogger("systemd")),
	}
}

// build wires every component. Nothing opens the camera until a Start request.
func (s *service) build() error {
	captureCfg, err := s.opts.CaptureConfig()
	if err != nil {
		return err
	}
	detectCfg, err := s.opts.DetectorConfig()
	if err != nil {
		return err
	}
	recorderCfg, err := s.opts.RecorderConfig()
	if err != nil {
		return err
	}

	source, err := capture.New(captureCfg, logging.GetLogger("capture"))
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	sinks, err := sink.New(s.opts.SinkConfig(), logging.GetLogger("sink"))
	if err != nil {
		return fmt.Errorf("sink: %w", err)
	}
	detector, err := detect.Open(detectCfg, logging.GetLogger("detect"))
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	s.detector = detector

	bus := events.New()
	s.notify.FollowRecording(bus)
	s.rec = recorder.New(recorderCfg, source, detector, sinks, bus, logging.GetLogger("recorder"))

	var ledController led.Controller
	if s.opts.FeaturesLEDControl {
		s.logger.Info("LED control enabled, initializing")
		ledController = led.New(logging.GetLogger("led"), s.opts.FeaturesLEDName)
		s.leds = led.NewManager(ledController, bus, logging.GetLogger("led"))
	}

	s.server = api.NewServer(&api.Options{
		AuthUsername:      s.opts.AuthUsername,
		AuthPassword:      s.opts.AuthPassword,
		Recorder:          s.rec,
		EventBus:          bus,
		RecordingsDir:     s.opts.RecordingDir,
		PrometheusHandler: promhttp.Handler(),
		LEDController:     ledController,
	})

	if s.opts.Config != "" {
		s.watcher = config.NewConfigWatcher(s.opts.Config, config.ReadLoggingConfig, logging.GetLogger("config"))
		s.watcher.OnReload(func(cfg logging.Config) {
			logging.SetLevels(cfg.Level, cfg.Modules)
			s.logger.Info("Logging levels reloaded", "level", cfg.Level)
		})
	}
	return nil
}

// run builds the components and serves until shutdown closes the server.
func (s *service) run() error {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return nil
	}
	if err := s.build(); err != nil {
		s.mu.Unlock()
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			s.logger.Warn("Config watcher disabled", "path", s.opts.Config, "error", err)
		}
	}
	if s.leds != nil {
		s.leds.Start()
	}
	server := s.server
	s.mu.Unlock()

	go s.notify.Watchdog(ctx)
	s.notify.Status("idle")
	s.notify.Ready()

	s.logger.Info("Starting facegate", "version", version.String(), "addr", s.opts.Port, "recordings", s.opts.RecordingDir)
	if err := server.Start(s.opts.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// shutdown finalizes a live recording first so the file is playable, then
// closes the API and the classifier.
func (s *service) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true

	s.notify.Stopping()
	s.logger.Info("Shutting down")

	if s.rec != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.rec.Close(ctx); err != nil {
			s.logger.Error("Recording did not shut down cleanly", "error", err)
		}
		cancel()
	}
	if s.server != nil {
		if err := s.server.Stop(); err != nil {
			s.logger.Error("Error stopping HTTP server", "error", err)
		}
	}
	if s.leds != nil {
		s.leds.Stop()
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Debug("Stopping config watcher", "error", err)
		}
	}
	if s.detector != nil {
		if err := s.detector.Close(); err != nil {
			s.logger.Warn("Closing detector", "error", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *cmd.Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "path", opts.Config, "error", loadErr)
		}
		logging.Initialize(opts.LoggingConfig())

		svc := newService(opts)

		hooks.OnStart(func() {
			if err := svc.run(); err != nil {
				svc.logger.Error("facegate failed", "error", err)
				svc.shutdown()
				os.Exit(1)
			}
		})

		hooks.OnStop(svc.shutdown)
	})

	root := cli.Root()
	root.Use = "facegate"
	root.Short = "Presence-gated camera recorder"
	root.Version = version.String()

	root.AddCommand(cmd.CreateRecordCmd())
	root.AddCommand(cmd.CreateProbeCmd())

	cli.Run()
}
