// Package main provides the arena server binary: the WebSocket endpoint,
// the lobby and session registries, and optional match persistence.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/tilestrike/arena/internal/config"
	"github.com/tilestrike/arena/internal/game/arena"
	"github.com/tilestrike/arena/internal/game/lobby"
	"github.com/tilestrike/arena/internal/game/rng"
	"github.com/tilestrike/arena/internal/gameserver"
	"github.com/tilestrike/arena/internal/gameserver/ws"
	"github.com/tilestrike/arena/internal/observability"
	"github.com/tilestrike/arena/internal/server"
	"github.com/tilestrike/arena/internal/settlement"
	"github.com/tilestrike/arena/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting arena server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("path", cfg.Server.Path),
	)

	src := rng.NewCryptoSource()

	// Load tile maps
	mapStart := time.Now()
	maps, err := arena.LoadMapSet(cfg.Game.MapsDir)
	if err != nil {
		logger.Fatal("loading maps", zap.Error(err))
	}
	logger.Info("maps loaded",
		zap.Strings("names", maps.Names()),
		zap.Duration("elapsed", time.Since(mapStart)),
	)

	// Match persistence is optional; without it the server keeps results
	// in memory only.
	var store settlement.MatchStore = settlement.NoopStore{}
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		store = postgres.NewMatchRepository(pool.DB())
	} else {
		logger.Info("match persistence disabled")
	}

	finalizer := settlement.NewFinalizer(
		store,
		settlement.NoopChain{},
		settlement.NoopRatings{},
		10*time.Second,
		observability.Component(logger, "settlement"),
	)

	hub := ws.NewHub(observability.Component(logger, "ws"))

	sessions := gameserver.NewSessionRegistry(
		maps,
		arena.NewPlacer(src),
		hub,
		finalizer,
		gameserver.Config{
			TickInterval:      cfg.Game.TickInterval,
			RespawnDelay:      cfg.Game.RespawnDelay,
			CleanupGrace:      cfg.Game.CleanupGrace,
			RespawnRetryLimit: cfg.Game.RespawnRetryLimit,
		},
		observability.Component(logger, "sessions"),
	)

	lobbies := lobby.NewRegistry(
		src,
		hub,
		sessions,
		cfg.Game.StakingTimeout,
		cfg.Game.EscrowContract,
		observability.Component(logger, "lobbies"),
	)

	router := gameserver.NewRouter(lobbies, sessions, hub, logger)
	wsServer := ws.NewServer(cfg.Server, hub, router, observability.Component(logger, "ws"))

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsServer.ListenAndServe,
		StopFn:  wsServer.Stop,
	})

	logger.Info("arena server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("lifecycle error", zap.Error(err))
	}
}
