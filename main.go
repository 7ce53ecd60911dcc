package main

import (
	"context"
	"time"

	"github.com/cppla/marketcore/config"
	"github.com/cppla/marketcore/events"
	"github.com/cppla/marketcore/routes"
	"github.com/cppla/marketcore/services"
	"github.com/cppla/marketcore/store"
	"github.com/cppla/marketcore/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync()

	var st services.Store
	if cfg.DBDriver == "memory" {
		utils.Sugar.Warn("using in-memory store; data is lost on restart")
		st = store.NewMemoryStore()
	} else {
		st = store.NewGormStore(config.InitDatabase(store.Models()...))
	}

	if cfg.SeedDefaults {
		n, err := store.SeedAchievements(context.Background(), st)
		if err != nil {
			utils.Sugar.Fatalf("seed achievements: %v", err)
		}
		utils.Sugar.Infof("seeded %d default achievements", n)
	}

	locker := utils.NewPairLocker(utils.GetRedis(),
		time.Duration(cfg.LockTTLSeconds)*time.Second,
		time.Duration(cfg.LockWaitSeconds)*time.Second)

	bus := events.NewBus(utils.Logger.Named("events"), cfg.EventWorkers, cfg.EventQueueSize)
	engine := services.NewEngine(st, locker, bus, services.Options{
		ManualClaim: cfg.ManualClaim,
		Logger:      utils.Logger.Named("achievements"),
	})
	scanner := services.NewScanner(engine, utils.Logger.Named("scanner"))
	scanner.Register(bus)

	r := routes.SetupRouter(routes.Deps{Engine: engine, Scanner: scanner, Publisher: bus})

	srv := utils.NewServer(":"+cfg.AppPort, r, utils.DEFAULT_READ_TIMEOUT, utils.DEFAULT_WRITE_TIMEOUT)
	srv.OnShutdown(func(context.Context) {
		bus.Close()
		utils.Sugar.Info("event bus drained")
	})

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := srv.ListenAndServe(); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
