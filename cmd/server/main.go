package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"hedger/internal/api"
	"hedger/internal/config"
	"hedger/internal/engine"
	"hedger/internal/exchange"
	"hedger/internal/models"
	"hedger/internal/repository"
	"hedger/internal/service"
	"hedger/internal/websocket"
	"hedger/pkg/crypto"
	"hedger/pkg/utils"
)

func main() {
	// Конфигурация процесса из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	defer log.Sync()

	// Торговые определения: аккаунты, пары, риск-лимиты
	trading, err := config.LoadTrading(cfg.TradingConfigPath)
	if err != nil {
		log.Fatal("failed to load trading config", utils.Err(err))
	}

	// Аудит-журнал в PostgreSQL
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()
	log.Info("connected to database",
		utils.String("host", cfg.Database.Host),
		utils.String("name", cfg.Database.Name),
	)

	if err := repository.InitSchema(db); err != nil {
		log.Fatal("failed to initialize database schema", utils.Err(err))
	}

	hedgeRepo := repository.NewHedgeRepository(db)
	riskRepo := repository.NewRiskEventRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// WebSocket hub для дашборда
	hub := websocket.NewHub(log)
	go hub.Run()

	// Write-behind аудит: торговый путь никогда не ждёт БД
	audit := service.NewAuditService(hedgeRepo, riskRepo, notifRepo, statsRepo, hub, log)

	// Аккаунты и учётные данные биржи
	accounts, maxTrades, creds, err := buildAccounts(cfg, trading)
	if err != nil {
		log.Fatal("failed to prepare accounts", utils.Err(err))
	}

	conn, err := exchange.New(cfg.Exchange, creds, log)
	if err != nil {
		log.Fatal("failed to create exchange connector", utils.Err(err))
	}
	defer conn.Close()

	// Ядро
	registry := engine.NewAccountRegistry(accounts, maxTrades, log)
	risk := engine.NewRiskManager(riskLimits(cfg, trading), registry, audit.RiskSink(), log)
	cooldowns := engine.NewCooldownTracker()
	coord := engine.NewCoordinator(registry, risk, cooldowns, conn, conn, cfg.Engine, log)
	coord.SetUpdateCallback(audit.HandleHedgeUpdate)
	coord.SetNotifyCallback(audit.HandleNotification)
	gate := engine.NewAdmissionGate(coord, registry, risk, cooldowns, conn, cfg.Engine.OrderTimeout, log)

	pairs := trading.PairModels()
	eng := engine.NewEngine(cfg.Engine, pairs, gate, coord, registry, risk, cooldowns, conn, conn, log)

	// Сервисный слой
	statusService := service.NewStatusService(eng, hedgeRepo, riskRepo, notifRepo, statsRepo)
	controlService := service.NewControlService(eng, log)
	controlService.SetNotifyCallback(audit.HandleNotification)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go audit.Run(rootCtx)

	if err := conn.Start(rootCtx); err != nil {
		log.Fatal("failed to start exchange connector", utils.Err(err))
	}

	if err := eng.Start(rootCtx); err != nil {
		log.Fatal("failed to start engine", utils.Err(err))
	}

	// HTTP: status/control API, метрики, ws-поток
	router := api.SetupRoutes(&api.Dependencies{
		Status:         statusService,
		Control:        controlService,
		Hub:            hub,
		APIToken:       cfg.Security.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Log:            log,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", utils.String("addr", server.Addr))
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	// Порядок важен: сначала останавливается торговля, потом HTTP,
	// в конце аудит дописывает хвост журнала
	if err := eng.Stop(); err != nil && err != engine.ErrNotRunning {
		log.Error("error stopping engine", utils.Err(err))
	}
	conn.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", utils.Err(err))
	}

	cancel()
	audit.Wait()

	log.Info("server exited")
}

// buildAccounts готовит модели аккаунтов для реестра и учётные данные
// для биржевого клиента. Приватные ключи расшифровываются только в
// live режиме: paper клиент их не использует.
func buildAccounts(cfg *config.Config, trading *config.TradingConfig) ([]models.Account, map[string]int, []exchange.Credentials, error) {
	accounts := make([]models.Account, 0, len(trading.Accounts))
	maxTrades := make(map[string]int, len(trading.Accounts))
	creds := make([]exchange.Credentials, 0, len(trading.Accounts))

	key := []byte(cfg.Security.EncryptionKey)

	for _, acc := range trading.Accounts {
		accounts = append(accounts, models.Account{
			Address:          acc.Address,
			Index:            acc.Index,
			AvailableBalance: acc.InitialBalance,
		})
		maxTrades[acc.Address] = acc.MaxDailyTrades

		if cfg.Exchange.Mode != "live" {
			continue
		}
		privateKey, err := crypto.Decrypt(acc.EncryptedPrivateKey, key)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to decrypt private key for %s: %w", acc.Address, err)
		}
		creds = append(creds, exchange.Credentials{
			Address:    acc.Address,
			Index:      acc.Index,
			PrivateKey: privateKey,
		})
	}

	return accounts, maxTrades, creds, nil
}

// riskLimits собирает лимиты трёх уровней: глобальный и аккаунтный из
// YAML (fallback на переменные окружения), по-парные из определений пар
func riskLimits(cfg *config.Config, trading *config.TradingConfig) engine.RiskLimits {
	global := trading.Risk.GlobalMaxDailyLoss
	if global == 0 {
		global = cfg.Engine.GlobalMaxDailyLoss
	}

	pairLimits := make(map[string]float64, len(trading.Pairs))
	for _, p := range trading.Pairs {
		if p.MaxDailyLoss > 0 {
			pairLimits[p.ID] = p.MaxDailyLoss
		}
	}

	minBalances := make(map[string]float64, len(trading.Accounts))
	for _, acc := range trading.Accounts {
		if acc.MinBalance > 0 {
			minBalances[acc.Address] = acc.MinBalance
		}
	}

	return engine.RiskLimits{
		GlobalMaxDailyLoss:  global,
		AccountMaxDailyLoss: trading.Risk.AccountMaxDailyLoss,
		PairMaxDailyLoss:    pairLimits,
		AccountMinBalance:   minBalances,
	}
}

// initDatabase открывает подключение к PostgreSQL и проверяет его
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
