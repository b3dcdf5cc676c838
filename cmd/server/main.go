// Command server runs the car advisory HTTP API.
//
// Startup order: environment (.env for development), configuration, logging,
// storage (SQLite open, migrate, seed), tracing, model client, router, and
// finally an http.Server with graceful shutdown.
//
// @title                      Car Advisor API
// @version                    1.0
// @description                Bilingual car-buying advisory chat backend: conversations, advisory turns with recommendations and next steps, and a searchable car catalog.
// @BasePath                   /api/v1
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/ymzhao/go-car-advisor/docs"
	"github.com/ymzhao/go-car-advisor/internal/config"
	"github.com/ymzhao/go-car-advisor/internal/domain"
	httpapi "github.com/ymzhao/go-car-advisor/internal/http"
	"github.com/ymzhao/go-car-advisor/internal/llm"
	"github.com/ymzhao/go-car-advisor/internal/observability"
	"github.com/ymzhao/go-car-advisor/internal/repo"
	"github.com/ymzhao/go-car-advisor/internal/services"
	"github.com/ymzhao/go-car-advisor/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate schema")
	}

	ctx := context.Background()

	cars, err := loadCatalog(cfg.SeedPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.SeedPath).Msg("load catalog seed")
	}
	if err := repo.SeedCars(ctx, db, cars); err != nil {
		log.Fatal().Err(err).Msg("seed catalog")
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			log.Warn().Err(err).Msg("database tracing unavailable")
		}
	}

	model, err := buildModel(cfg.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("configure model client")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, db, model, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracing shutdown failed")
	}
}

// buildModel wires the configured language model backend. With streaming
// simulation enabled, single-shot replies are chunked client-side so the SSE
// surface behaves identically either way.
func buildModel(mc config.ModelConfig) (services.ModelClient, error) {
	client, err := llm.New(llm.Options{
		APIKey:  mc.APIKey,
		BaseURL: mc.BaseURL,
		Model:   mc.Name,
	})
	if err != nil {
		return nil, err
	}
	if mc.SimulateStream {
		return &llm.SingleShotStreamer{Generator: client}, nil
	}
	return client, nil
}

// loadCatalog returns the seed catalog: the built-in development set, or the
// contents of a JSON file when SEED_PATH is set.
func loadCatalog(path string) ([]domain.Car, error) {
	if path == "" {
		return defaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cars []domain.Car
	if err := json.Unmarshal(b, &cars); err != nil {
		return nil, err
	}
	return cars, nil
}

// defaultCatalog is a small bilingual development catalog. Production
// deployments replace it via SEED_PATH.
func defaultCatalog() []domain.Car {
	return []domain.Car{
		{
			Make: "Toyota", Model: "RAV4", Category: "SUV", FuelType: "hybrid",
			PriceMin: 32000, PriceMax: 42000,
			DescriptionEN: "Compact hybrid SUV with generous cargo space and strong resale value.",
			DescriptionZH: "紧凑型混动越野车，载物空间大，保值率高。",
			Features:      domain.StringList{"AWD", "adaptive cruise", "hybrid"},
		},
		{
			Make: "Toyota", Model: "Corolla", Category: "sedan", FuelType: "gasoline",
			PriceMin: 23000, PriceMax: 30000,
			DescriptionEN: "Dependable compact sedan with low running costs.",
			DescriptionZH: "可靠的紧凑型轿车，使用成本低。",
			Features:      domain.StringList{"lane assist", "fuel efficient"},
		},
		{
			Make: "Honda", Model: "CR-V", Category: "SUV", FuelType: "gasoline",
			PriceMin: 33000, PriceMax: 43000,
			DescriptionEN: "Roomy family SUV known for reliability and comfort.",
			DescriptionZH: "空间宽敞的家用越野车，以可靠和舒适著称。",
			Features:      domain.StringList{"AWD", "spacious"},
		},
		{
			Make: "Honda", Model: "Civic", Category: "sedan", FuelType: "gasoline",
			PriceMin: 25000, PriceMax: 33000,
			DescriptionEN: "Sporty compact sedan with a refined interior.",
			DescriptionZH: "运动风格的紧凑型轿车，内饰精致。",
			Features:      domain.StringList{"sporty", "fuel efficient"},
		},
		{
			Make: "Tesla", Model: "Model Y", Category: "SUV", FuelType: "electric",
			PriceMin: 53000, PriceMax: 65000,
			DescriptionEN: "Electric crossover with long range and fast charging.",
			DescriptionZH: "电动跨界越野车，续航长，充电快。",
			Features:      domain.StringList{"electric", "autopilot", "long range"},
		},
		{
			Make: "BYD", Model: "Seal", Category: "sedan", FuelType: "electric",
			PriceMin: 38000, PriceMax: 48000,
			DescriptionEN: "Electric sedan with blade battery technology and premium trim.",
			DescriptionZH: "搭载刀片电池的电动轿车，配置豪华。",
			Features:      domain.StringList{"electric", "fast charging"},
		},
		{
			Make: "Volkswagen", Model: "Tiguan", Category: "SUV", FuelType: "gasoline",
			PriceMin: 34000, PriceMax: 45000,
			DescriptionEN: "European compact SUV with composed handling.",
			DescriptionZH: "欧系紧凑型越野车，操控稳健。",
			Features:      domain.StringList{"AWD", "panoramic roof"},
		},
		{
			Make: "BMW", Model: "X3", Category: "SUV", FuelType: "gasoline",
			PriceMin: 55000, PriceMax: 70000,
			DescriptionEN: "Premium midsize SUV balancing luxury and driving dynamics.",
			DescriptionZH: "豪华中型越野车，兼顾舒适与驾驶乐趣。",
			Features:      domain.StringList{"luxury", "AWD"},
		},
		{
			Make: "Hyundai", Model: "Elantra", Category: "sedan", FuelType: "hybrid",
			PriceMin: 24000, PriceMax: 32000,
			DescriptionEN: "Value-focused hybrid sedan with a long warranty.",
			DescriptionZH: "高性价比混动轿车，质保期长。",
			Features:      domain.StringList{"hybrid", "warranty"},
		},
		{
			Make: "Ford", Model: "F-150", Category: "pickup", FuelType: "gasoline",
			PriceMin: 45000, PriceMax: 75000,
			DescriptionEN: "Full-size pickup with best-in-class towing.",
			DescriptionZH: "全尺寸皮卡，拖曳能力同级领先。",
			Features:      domain.StringList{"towing", "4x4"},
		},
	}
}
