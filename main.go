package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mimitomo/internal/bootstrap"
	"mimitomo/internal/config"
	"mimitomo/internal/httpapi"
	"mimitomo/internal/logging"
	"mimitomo/internal/seed"
	"mimitomo/internal/store/supabase"
	"mimitomo/internal/usecase"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mimitomo",
		Short:         "Speech companion for elderly users",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, event stream and speech sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})

	var screen string
	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Print live transcripts of a screen to the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd.Context(), usecase.ScreenName(screen))
		},
	}
	listenCmd.Flags().StringVarP(&screen, "screen", "s", string(usecase.ScreenHearingAid), "Screen to open (hearing-aid, chat, reminders)")
	rootCmd.AddCommand(listenCmd)

	var seedFile string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a user profile and reminders from a YAML file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), seedFile)
		},
	}
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Seed file (required)")
	_ = seedCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(seedCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables, or print the supabase schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context())
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New("mimitomo", cfg.LogLevel, cfg.LogFormat), nil
}

func runServe(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	hub := httpapi.NewHub(nil, log.With().Str("component", "events").Logger(), cfg.HTTP.AllowedOrigins...)
	app := NewApp(hub)
	services, err := bootstrap.Build(ctx, cfg, log, app, bootstrap.Options{Migrate: true})
	if err != nil {
		return err
	}
	hub.SetMetrics(services.Metrics)

	router := httpapi.NewRouter(httpapi.Services{
		Profiles:       services.Profiles,
		Reminders:      services.Reminders,
		Memories:       services.Memories,
		Conversation:   services.Conversation,
		Shell:          services.Shell,
		Voice:          services.Voice,
		Hub:            hub,
		Events:         app,
		Metrics:        services.Metrics,
		Gatherer:       services.Registry,
		MediaDir:       services.MediaDir,
		MediaPrefix:    cfg.Store.MediaBaseURL,
		MaxUploadBytes: cfg.HTTP.MaxUploadBytes,
		Log:            log.With().Str("component", "http").Logger(),
	})
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("user_id", cfg.UserID).Str("store", cfg.Store.Driver).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if closeErr := services.Close(closeCtx); closeErr != nil {
		log.Warn().Err(closeErr).Msg("failed to release services cleanly")
	}
	return err
}

func runListen(ctx context.Context, screen usecase.ScreenName) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	app := NewApp(newTerminalPublisher(os.Stdout))
	services, err := bootstrap.Build(ctx, cfg, log, app, bootstrap.Options{Migrate: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(context.Background()); err != nil {
			log.Warn().Err(err).Msg("failed to release services cleanly")
		}
	}()

	if _, err := services.Shell.Enter(screen); err != nil {
		return err
	}
	if screen != usecase.ScreenHearingAid {
		if err := services.Shell.Start(screen); err != nil {
			return err
		}
	}

	<-ctx.Done()
	fmt.Fprintln(os.Stdout)
	return services.Shell.Leave(screen)
}

func runSeed(ctx context.Context, path string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	file, err := seed.Load(path)
	if err != nil {
		return err
	}

	store, _, _, err := bootstrap.OpenStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := seed.Apply(ctx, usecase.NewProfiles(store, nil), usecase.NewReminders(store, nil, nil), cfg.UserID, file)
	if err != nil {
		return err
	}
	log.Info().
		Str("user_id", result.User.ID).
		Int("profile_items", result.Items).
		Int("reminders", result.Reminders).
		Msg("seed applied")
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Store.Driver == config.DriverSupabase {
		log.Info().Msg("supabase tables are managed by the hosted project; apply this schema in its SQL editor")
		_, err := fmt.Fprint(os.Stdout, supabase.Schema)
		return err
	}

	store, _, _, err := bootstrap.OpenStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	log.Info().Str("store", cfg.Store.Driver).Msg("tables are up to date")
	return store.Close()
}
