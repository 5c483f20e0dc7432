// Package main provides the game server binary: a WebSocket/JSON-RPC
// listener over the sector, combat, garrison, cargo, and salvage domain.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voidreach/sectors/internal/config"
	"github.com/voidreach/sectors/internal/game/cargo"
	"github.com/voidreach/sectors/internal/game/combat"
	"github.com/voidreach/sectors/internal/game/garrison"
	"github.com/voidreach/sectors/internal/game/salvage"
	"github.com/voidreach/sectors/internal/game/sector"
	"github.com/voidreach/sectors/internal/game/session"
	"github.com/voidreach/sectors/internal/gameserver"
	"github.com/voidreach/sectors/internal/observability"
	"github.com/voidreach/sectors/internal/server"
	"github.com/voidreach/sectors/internal/storage/postgres"
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

	logger.Info("starting game server", zap.String("ws_addr", cfg.WebSocket.Addr()))

	sectorMap, err := sector.LoadMapFromFile(cfg.GameServer.SectorMapPath)
	if err != nil {
		logger.Fatal("loading sector map", zap.String("path", cfg.GameServer.SectorMapPath), zap.Error(err))
	}
	sectorMgr, err := sector.NewManager(sectorMap)
	if err != nil {
		logger.Fatal("building sector manager", zap.Error(err))
	}
	logger.Info("sector map loaded", zap.Int("sectors", sectorMgr.SectorCount()))

	garrisonStore, err := garrison.NewStore(cfg.GameServer.GarrisonStorePath)
	if err != nil {
		logger.Fatal("loading garrison store", zap.String("path", cfg.GameServer.GarrisonStorePath), zap.Error(err))
	}

	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	accountRepo := postgres.NewAccountRepository(pool.DB())
	pilotRepo := postgres.NewPilotRepository(pool.DB())

	sessMgr := session.NewManager()
	salvageMgr := salvage.NewManager(cfg.GameServer.SalvageTTL)
	combatMgr := combat.NewManager(cfg.GameServer.RoundDuration())

	wsServer := gameserver.NewServer(cfg.WebSocket, sessMgr, logger)

	cargoOfUnits := func(characterID string) map[string]int {
		hold := sessMgr.CargoOf(characterID)
		if hold == nil {
			return nil
		}
		return hold.Units()
	}
	combatGlue := gameserver.NewCombatGlue(
		combatMgr, garrisonStore, salvageMgr, wsServer,
		sessMgr.CorporationOf, sessMgr.DisplayName, cargoOfUnits,
	)
	cargoGlue := gameserver.NewCargoGlue(salvageMgr, wsServer, func(characterID string) *cargo.Hold {
		return sessMgr.CargoOf(characterID)
	})
	combatHandler := gameserver.NewCombatHandler(combatMgr, garrisonStore, sessMgr, combatGlue)
	garrisonHandler := gameserver.NewGarrisonHandler(garrisonStore, sessMgr)
	warpHandler := gameserver.NewWarpHandler(sectorMgr, sessMgr, garrisonStore, combatGlue, wsServer)
	chatHandler := gameserver.NewChatHandler(sessMgr, wsServer)
	adminHandler := gameserver.NewAdminHandler(gameserver.NewAccountRepoAdapter(accountRepo), sessMgr)

	gameserver.RegisterGameEndpoints(wsServer, combatHandler, garrisonHandler, warpHandler, cargoGlue, chatHandler, adminHandler)

	loginHandler := gameserver.NewLoginHandler(accountRepo, pilotRepo, sessMgr, cfg.GameServer)

	mux := http.NewServeMux()
	mux.Handle("/login", loginHandler)
	mux.Handle(cfg.WebSocket.Path, wsServer)

	httpServer := &http.Server{
		Addr:    cfg.WebSocket.Addr(),
		Handler: mux,
	}

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: func() error {
			logger.Info("websocket server listening", zap.String("addr", cfg.WebSocket.Addr()), zap.String("path", cfg.WebSocket.Path))
			err := httpServer.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("websocket server shutdown error", zap.Error(err))
			}
		},
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ws_addr", cfg.WebSocket.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
