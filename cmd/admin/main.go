package main

import (
	"bufio"
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/timecapsule/internal/admin"
	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/config"
	"github.com/dmitrijs2005/timecapsule/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewJSON(os.Stderr, cfg.LogLevel)

	opts, err := admin.ParseOptions(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Printf("migrations error: %v", err)
		return
	}

	// bootstrap never touches stored files
	us := services.NewUserService(db, rm, nil, cfg, logger)

	if err := admin.Run(ctx, us, opts, bufio.NewReader(os.Stdin), os.Stdout); err != nil {
		log.Printf("%v", err)
		return
	}
}
