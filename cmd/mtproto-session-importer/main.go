package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"tg-importance-bot/internal/adapters/mtproto"
	"tg-importance-bot/internal/adapters/repo"
	"tg-importance-bot/internal/infra/config"
	"tg-importance-bot/internal/infra/db"
	applog "tg-importance-bot/internal/infra/log"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogLevel)

	var (
		filePath    string
		sessionName string
	)
	flag.StringVar(&filePath, "file", "", "Path to MTProto session file (gotd JSON, Telethon string or its JSON export)")
	flag.StringVar(&sessionName, "name", cfg.MTProto.SessionName, "Name of the MTProto session")
	flag.Parse()

	if filePath == "" {
		logger.Fatal().Msg("mtproto-importer: path to session file is required (-file)")
	}
	raw, err := os.ReadFile(filePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("mtproto-importer: failed to read session file")
	}
	if cfg.PGDSN == "" {
		logger.Fatal().Msg("mtproto-importer: PG_DSN environment variable is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg.PGDSN, 1)
	if err != nil {
		logger.Fatal().Err(err).Msg("mtproto-importer: failed to connect to database")
	}
	defer pool.Close()

	store := mtproto.NewSessionStore(repo.NewPostgres(pool), sessionName)
	converted, err := store.ImportSession(ctx, raw)
	if err != nil {
		logger.Fatal().Err(err).Msg("mtproto-importer: failed to import session")
	}

	if converted {
		fmt.Println("Session was converted to gotd JSON format before storing")
	}
	fmt.Printf("Stored MTProto session %q in database\n", sessionName)
}
