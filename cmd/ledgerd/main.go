package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/jmerrifield20/pohledger/internal/accounts"
	"github.com/jmerrifield20/pohledger/internal/genesis"
	chainhealth "github.com/jmerrifield20/pohledger/internal/health"
	"github.com/jmerrifield20/pohledger/internal/node/handler"
	"github.com/jmerrifield20/pohledger/internal/node/service"
	"github.com/jmerrifield20/pohledger/internal/poh"
	"github.com/jmerrifield20/pohledger/internal/runtime"
)

func main() {
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

// newLogger reads log.development from the environment only; the config
// file has not been loaded yet.
func newLogger() (*zap.Logger, error) {
	if strings.EqualFold(os.Getenv("LOG_DEVELOPMENT"), "true") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger) error {
	// ── Config ────────────────────────────────────────────────────────────────
	viper.SetConfigName("ledgerd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("node.port", 8080)
	viper.SetDefault("node.grpc_port", 9090)
	viper.SetDefault("node.cors_origins", []string{"*"})
	viper.SetDefault("node.rate_limit_rps", 20)
	viper.SetDefault("poh.seed", "solana-genesis")
	viper.SetDefault("poh.hashes_per_tick", 100)
	viper.SetDefault("poh.tick_interval", "500ms")
	viper.SetDefault("genesis.accounts", 5)
	viper.SetDefault("genesis.lamports", uint64(100_000_000_000))
	viper.SetDefault("archive.database_url", "")
	viper.SetDefault("archive.buffer", 1024)
	viper.SetDefault("health.verify_interval", "10s")
	viper.SetDefault("log.entries", false)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	nodeID := uuid.New()
	logger = logger.With(zap.String("node_id", nodeID.String()))

	// ── Genesis ───────────────────────────────────────────────────────────────
	keyring, err := genesis.NewKeyring(viper.GetInt("genesis.accounts"))
	if err != nil {
		return fmt.Errorf("genesis keyring: %w", err)
	}
	lamports := viper.GetUint64("genesis.lamports")
	store := accounts.NewStore(keyring.Accounts(lamports))
	for _, kp := range keyring.Pairs() {
		logger.Info("genesis account",
			zap.Uint8("number", kp.Number),
			zap.String("id", kp.ID.String()),
			zap.Uint64("lamports", lamports),
		)
	}

	// ── Hash chain ────────────────────────────────────────────────────────────
	seed := viper.GetString("poh.seed")
	recorder := poh.NewRecorder(poh.GenesisHash(seed), poh.Config{
		HashesPerTick: viper.GetUint64("poh.hashes_per_tick"),
		TickInterval:  viper.GetDuration("poh.tick_interval"),
		LogEntries:    viper.GetBool("log.entries"),
	}, logger)
	recorder.SetMetricsRecord(handler.RecordEntry)
	logger.Info("hash chain ready",
		zap.String("seed", seed),
		zap.String("genesis", recorder.Genesis().Hex()),
		zap.Uint64("hashes_per_tick", recorder.HashesPerTick()),
	)

	// ── Entry archive (optional) ──────────────────────────────────────────────
	var archiver *poh.Archiver
	if dbURL := viper.GetString("archive.database_url"); dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres, archiving chain entries")

		archiver = poh.NewArchiver(poh.NewPostgresArchive(db, logger), viper.GetInt("archive.buffer"), logger)
		archiver.SetDropRecord(handler.RecordArchiveDrop)
		recorder.OnAppend(archiver.Enqueue)
	} else {
		logger.Info("entry archive: disabled (set archive.database_url to enable)")
	}

	// ── Execution ─────────────────────────────────────────────────────────────
	engine := runtime.NewEngine(runtime.NewRegistry(), logger)
	svc := service.NewLedgerService(store, engine, recorder, keyring, logger)
	svc.SetMetricsRecord(handler.RecordTransaction)

	// ── gRPC health ───────────────────────────────────────────────────────────
	grpcPort := viper.GetInt("node.grpc_port")
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", grpcPort, err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(loggingInterceptor(logger)),
	)
	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthSvc)
	reflection.Register(grpcServer)

	monitor := chainhealth.NewChainMonitor(recorder, healthSvc, chainhealth.Config{
		VerifyInterval: viper.GetDuration("health.verify_interval"),
	}, logger)
	monitor.SetMetricsRecord(handler.RecordVerification)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("node.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", handler.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handler.RequestIDHeader},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	router.Use(handler.RequestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		if err := monitor.Check(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "chain verification failed", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "entries": recorder.Len()})
	})
	router.GET("/metrics", handler.MetricsHandler())

	rps := viper.GetInt("node.rate_limit_rps")
	v1 := router.Group("/api/v1")
	handler.NewTransactionHandler(svc, handler.RateLimiter(rps, rps*2), logger).Register(v1)
	handler.NewChainHandler(svc, logger).Register(v1)

	// ── Background workers ────────────────────────────────────────────────────
	// Each worker gets its own channel; a single signal would only wake one.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	tickQuit := make(chan os.Signal, 1)
	monitorQuit := make(chan os.Signal, 1)
	archiveQuit := make(chan os.Signal, 1)
	archiveDone := make(chan struct{})

	go recorder.Start(tickQuit)
	go monitor.Start(monitorQuit)
	if archiver != nil {
		go func() {
			archiver.Start(archiveQuit)
			close(archiveDone)
		}()
	} else {
		close(archiveDone)
	}

	httpPort := viper.GetInt("node.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ledgerd gRPC health listening", zap.Int("port", grpcPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Fatal("gRPC serve error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("ledgerd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	sig := <-quit
	logger.Info("shutting down ledgerd...")
	healthSvc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	tickQuit <- sig
	monitorQuit <- sig
	archiveQuit <- sig
	<-archiveDone

	logger.Info("ledgerd stopped",
		zap.Int("entries", recorder.Len()),
		zap.String("last_hash", recorder.LastHash().Hex()),
	)
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
