package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/networth-backend/internal/adapter/grpc"
	"github.com/simaogato/networth-backend/internal/bootstrap"
	"github.com/simaogato/networth-backend/internal/config"
	"github.com/simaogato/networth-backend/internal/logger"
	"github.com/simaogato/networth-backend/internal/usecase/seeder"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zl.Sync()

	for _, w := range cfg.Warnings {
		zl.Warn(w)
	}

	// 2. Setup Store
	ctx := context.Background()
	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		zl.Fatal("Failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	// 3. Exchange rates: seed the cache from the rate table so the stale
	// fallback has a floor before the first provider call
	table, err := bootstrap.LoadRateTable(cfg)
	if err != nil {
		zl.Fatal("Failed to load rate table", zap.Error(err))
	}
	if table != nil {
		n, err := seeder.NewRateSeeder(store.Repos().ExchangeRates, table).Seed(ctx)
		if err != nil {
			zl.Fatal("Failed to seed exchange rates", zap.Error(err))
		}
		zl.Info("Exchange rates seeded", zap.Int("rates", n))
	}
	resolver := bootstrap.NewResolver(cfg, store.Repos().ExchangeRates, table, zl)

	// 4. Initialize Services (Use Cases)
	services := bootstrap.NewServices(store, resolver, zl)

	// 5. Start gRPC Server
	var jwtSecret []byte
	if cfg.JWTSecret != "" {
		jwtSecret = []byte(cfg.JWTSecret)
	}
	auth := &grpcadapter.Authenticator{
		StaticToken: cfg.APIToken,
		StaticOwner: cfg.APITokenOwner,
		JWTSecret:   jwtSecret,
	}

	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(zl),
			grpcadapter.AuthInterceptor(auth),
			grpcadapter.RateLimitInterceptor(grpcadapter.NewOwnerRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst), zl),
		),
	)

	grpcAdapter := grpcadapter.NewServer(
		services.Catalog,
		services.Snapshots,
		services.Brokerage,
		services.Portfolio,
		services.Rates,
	)
	grpcadapter.RegisterNetWorthServiceServer(grpcServer, grpcAdapter)

	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		zl.Fatal("Failed to listen", zap.String("addr", cfg.GRPCAddr), zap.Error(err))
	}

	// Start server in a goroutine
	go func() {
		zl.Info("gRPC server listening",
			zap.String("addr", cfg.GRPCAddr),
			zap.String("store", cfg.StoreDriver))
		if err := grpcServer.Serve(lis); err != nil {
			zl.Fatal("Failed to serve gRPC server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	waitForShutdown(grpcServer, zl)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(grpcServer *grpclib.Server, zl *zap.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	zl.Info("Shutting down gracefully", zap.String("signal", sig.String()))

	grpcServer.GracefulStop()
	zl.Info("gRPC server stopped")
}
