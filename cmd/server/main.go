package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/VitaminP8/commentree/internal/config"
	"github.com/VitaminP8/commentree/internal/document"
	"github.com/VitaminP8/commentree/internal/httpapi"
	"github.com/VitaminP8/commentree/internal/interaction"
	"github.com/VitaminP8/commentree/internal/mention"
	"github.com/VitaminP8/commentree/internal/profile"
	"github.com/VitaminP8/commentree/internal/report"
	"github.com/VitaminP8/commentree/internal/storage/memory"
	"github.com/VitaminP8/commentree/internal/storage/postgres"
	"github.com/VitaminP8/commentree/internal/subscription"
	"github.com/VitaminP8/commentree/internal/thread"
	"github.com/VitaminP8/commentree/internal/user"
)

func main() {
	configPath := flag.String("config", "", "Путь к TOML-файлу конфигурации")
	storageType := flag.String("storage", "", "Тип хранилища: memory или postgres (перекрывает конфигурацию)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *storageType != "" {
		cfg.Storage.Type = *storageType
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	setupLogger(cfg)

	var docStore document.Store
	var userStore user.UserStorage

	switch cfg.Storage.Type {
	case "postgres":
		if err := postgres.InitDB(cfg.Database); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to the database")
		}
		if err := postgres.Migrate(); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}

		log.Info().Msg("Используется PostgreSQL хранилище")
		docStore = postgres.NewDocumentPostgresStorage()
		userStore = postgres.NewUserPostgresStorage(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).WithModerators(cfg.Auth.Moderators...)

	case "memory":
		log.Info().Msg("Используется in-memory хранилище")
		docStore = memory.NewDocumentMemoryStorage()
		userStore = memory.NewUserMemoryStorage(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).WithModerators(cfg.Auth.Moderators...)
	}

	events := subscription.NewSubscriptionManager()
	ledger := report.NewLedger(docStore, cfg.Report.DetailsMax)
	notifications := mention.NewStoreSink(docStore)

	server := httpapi.NewServer(httpapi.Deps{
		Users:   userStore,
		Threads: thread.NewRegistry(docStore),
		Loader: thread.NewLoader(
			docStore,
			profile.NewHydrator(userStore),
			ledger,
			cfg.Thread.DepthLimit,
			cfg.Thread.FetchConcurrency,
		),
		Engine: interaction.NewEngine(
			docStore,
			ledger,
			mention.NewDispatcher(userStore, notifications),
			events,
			interaction.Config{MaxLength: cfg.Comment.MaxLength, CountEdits: cfg.Interaction.CountEdits},
		),
		Ledger:        ledger,
		Notifications: notifications,
		JWTSecret:     cfg.Auth.JWTSecret,
	}, cfg.Server.Port)

	// запуск HTTP сервера
	go func() {
		// Start не возвращается, пока не выполнится Shutdown или не произойдет фатальная ошибка
		err := server.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Ожидание SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Завершение...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("error while shutting down the server")
	}

	if cfg.Storage.Type == "postgres" {
		if err := postgres.CloseDB(); err != nil {
			log.Error().Err(err).Msg("error while closing the database")
		}
	}

	log.Info().Msg("Сервер остановлен корректно")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
