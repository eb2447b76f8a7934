package main

import (
	"context"
	"flag"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/doctor-scheduling/internal/config"
	"github.com/hackgods/doctor-scheduling/internal/db"
	"github.com/hackgods/doctor-scheduling/internal/directory"
	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

func main() {
	count := flag.Int("doctors", 100, "number of doctors to generate")
	days := flag.Int("days", 7, "days of availability per doctor, starting tomorrow")
	seed := flag.Uint64("seed", 0, "random seed, 0 for a random one")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With("seed")
	if cfg.PostgresDSN == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}
	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gen := newGenerator(gofakeit.New(*seed), cfg.Location())
	start := time.Now().In(cfg.Location()).AddDate(0, 0, 1)
	profiles := gen.doctors(*count, start, *days)

	dir := directory.NewPgDirectory(pool)
	for i, p := range profiles {
		if err := dir.Upsert(ctx, p); err != nil {
			logger.Fatal().Err(err).Str("doctor_id", p.ID).Msg("upsert doctor")
		}
		if (i+1)%25 == 0 {
			logger.Info().Int("done", i+1).Int("total", len(profiles)).Msg("doctors seeded")
		}
	}

	logger.Info().Int("doctors", len(profiles)).Int("days", *days).Msg("seed complete")
}
