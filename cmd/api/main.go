package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"mystorykid/internal/adapter/repo"
	"mystorykid/internal/download"
	"mystorykid/internal/generation"
	"mystorykid/internal/http/handlers"
	httpapi "mystorykid/internal/http/httpapi"
	"mystorykid/internal/infra"
	"mystorykid/internal/infra/geoip"
	"mystorykid/internal/middleware"
	"mystorykid/internal/providers/dzine"
	"mystorykid/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}
	signer, err := storage.NewURLSigner(cfg.StorageBaseURL, cfg.DownloadSigningSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure url signer")
	}

	downloads, err := download.NewService(download.Options{
		Store:        repo.NewDownloadRepository(dbpool),
		Signer:       signer,
		Logger:       &logger,
		TokenWindow:  cfg.TokenWindow,
		SignedURLTTL: cfg.SignedURLTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure download service")
	}

	dzineClient, err := dzine.NewClient(dzine.Options{
		APIKey:     cfg.DzineAPIKey,
		BaseURL:    cfg.DzineBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.HTTPWriteTimeout},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure dzine client")
	}
	if !dzineClient.HasCredentials() {
		logger.Warn().Msg("dzine api key missing, generation requests will fail")
	}

	coordinator, err := generation.NewCoordinator(generation.Options{
		API:          dzineClient,
		Logger:       &logger,
		PollInterval: cfg.PollInterval,
		PollTimeout:  cfg.PollTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generation coordinator")
	}
	defer coordinator.Close()

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, download audit rows will omit country")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	app := &handlers.App{
		Downloads:   downloads,
		Coordinator: coordinator,
		Styles:      dzine.NewStyleCache(dzineClient, cfg.StyleCacheTTL),
		Files:       fileStore,
		FileSigner:  signer,
		Logger:      logger,
	}

	router := httpapi.NewRouter(httpapi.Options{
		App:             app,
		CountryLookup:   countryLookup,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
