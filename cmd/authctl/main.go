package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/listeners"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultAPIKey    = "demo-api-key"
	defaultProjectID = "demo-project"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load .env")
	}
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("authctl stopped with error")
	}
	log.Info().Msg("authctl stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	configureLogging(c.GetEnv())
	displayAppname(c.GetAppName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kc, closeKeychain, err := openKeychain(ctx, c)
	if err != nil {
		return err
	}
	defer closeKeychain()

	app := appFromConfig(c)
	demo := newDemoBackend(app.ProjectID)
	registry := prometheus.NewRegistry()

	a, err := auth.New(ctx, app, demo.client(c), kc,
		auth.WithConfig(c),
		auth.WithMetrics(metrics.New(registry)),
	)
	if err != nil {
		return fmt.Errorf("auth.New: %w", err)
	}
	defer a.Close()

	a.AddAuthStateListener(func(e listeners.Event) {
		if e.UID == "" {
			log.Info().Msg("👋 signed out")
			return
		}
		log.Info().Str("uid", e.UID).Str("email", e.Session.Email).Msg("✅ signed in")
	})
	a.AddIDTokenListener(func(e listeners.Event) {
		if e.Session != nil {
			log.Debug().Str("uid", e.UID).Time("expires", e.Session.AccessTokenExpiry).Msg("🔑 access token changed")
		}
	})

	if err := demo.signIn(ctx, a); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	reportMetrics(registry)
	return nil
}

func appFromConfig(c config.Config) auth.App {
	app := auth.App{Name: c.GetAppName(), APIKey: c.GetAPIKey(), ProjectID: c.GetProjectID()}
	if app.APIKey == "" {
		app.APIKey = defaultAPIKey
	}
	if app.ProjectID == "" {
		app.ProjectID = defaultProjectID
	}
	return app
}

func configureLogging(env string) {
	zerolog.TimeFieldFormat = time.RFC3339
	if env == "PROD" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func reportMetrics(g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		log.Warn().Err(err).Msg("failed to gather metrics")
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			event := log.Info().Str("metric", mf.GetName()).Float64("value", m.GetCounter().GetValue())
			for _, label := range m.GetLabel() {
				event = event.Str(label.GetName(), label.GetValue())
			}
			event.Msg("📊")
		}
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
