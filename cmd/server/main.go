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

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Desk/internal/adapters/capture"
	router "github.com/dkeye/Desk/internal/adapters/http"
	"github.com/dkeye/Desk/internal/adapters/input"
	"github.com/dkeye/Desk/internal/adapters/rtc"
	wssignal "github.com/dkeye/Desk/internal/adapters/signal"
	"github.com/dkeye/Desk/internal/app"
	"github.com/dkeye/Desk/internal/app/orch"
	"github.com/dkeye/Desk/internal/config"
	"github.com/dkeye/Desk/internal/host"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cliApp := &cli.App{
		Name:  "desk",
		Usage: "Screen sharing session server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "environment: either 'development' or 'production'",
				Value:   "production",
				EnvVars: []string{"DESK_ENV"},
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a yaml config file (default: config/config.$CONFIG_ENV.yaml)",
				EnvVars: []string{"DESK_CONFIG"},
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "listen port, overrides the config file",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("")
	}
}

func initLogger(env, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if env == "development" && lvl > zerolog.DebugLevel {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// config logs through zerolog, so set it up with defaults first
	initLogger(c.String("env"), "")

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	initLogger(c.String("env"), cfg.LogLevel)

	fanout, err := app.ParseFanout(cfg.Sessions.FrameFanout)
	if err != nil {
		return err
	}
	ice, err := rtc.NewWebRTCConfig(cfg.ICEServers)
	if err != nil {
		return err
	}

	reg := app.NewRegistry()
	store := app.NewSessionStore()
	o := &orch.Orchestrator{
		Registry:   reg,
		Sessions:   store,
		Policy:     app.SimplePolicy{Fanout: fanout, KickSlow: cfg.Sessions.KickSlowControllers},
		Injector:   input.NewScopedInjector(input.NewLogBackend()),
		AutoCreate: cfg.Sessions.AutoCreate,
	}

	sweeper := app.NewSweeper(store, cfg.Sessions.SweepInterval, cfg.Sessions.Timeout)
	sweeper.OnExpired = o.OnExpired

	ctl := wssignal.NewSignalWSController(o, wssignal.NewRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Interval), wssignal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		WriteTimeout: cfg.WriteTimeout,
		SendBuffer:   cfg.SendBuffer,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(ctx, cfg, o, ctl, ice),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", addr).Bool("tls", cfg.TLS()).Msg("Desk server started")
		var err error
		if cfg.TLS() {
			err = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	if cfg.Host.Enabled {
		h := host.New(o, capture.NewPatternCapturer(capture.DefaultWidth, capture.DefaultHeight), cfg.Host.DisplayName)
		g.Go(func() error {
			return h.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server exited gracefully")
	return nil
}
