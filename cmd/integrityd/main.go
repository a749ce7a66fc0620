package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/estate-integrity/internal/app"
	"github.com/xela07ax/estate-integrity/internal/console/handler"
	"github.com/xela07ax/estate-integrity/internal/console/server"
	"github.com/xela07ax/estate-integrity/internal/console/service"
	"github.com/xela07ax/estate-integrity/internal/engine"
	"github.com/xela07ax/estate-integrity/internal/infra"
	"github.com/xela07ax/estate-integrity/internal/infra/auth"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("integrityd stopped with error", zap.Error(err))
	}
}

func run(cfg *infra.Config, logger *zap.Logger) error {
	// Admin API без ключа не поднимаем: токены выпускает внешний провайдер
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// 3. Ядро: Postgres, Redis, журнал, каналы, координатор
	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	engineApp, err := app.New(startCtx, cfg, logger, reg, app.Options{})
	cancel()
	if err != nil {
		return err
	}
	defer engineApp.Close()

	// 4. Admin API
	svc := service.NewIntegrityService(engineApp.Coordinator, engineApp.Repo, logger)
	console := server.NewConsoleServer(logger, auth.NewRSAValidator(pubKey), engineApp.Repo,
		handler.NewScanHandler(svc),
		handler.NewExceptionHandler(svc),
		handler.NewRunHandler(svc),
	)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      console,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout, // Прогон синхронный, таймаут с запасом
	}

	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 5. gRPC health для оркестратора
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc: listen: %w", err)
	}

	errCh := make(chan error, 3)
	go func() {
		logger.Info("grpc health server started", zap.Int("port", cfg.GRPC.Port))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server started", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics: %w", err)
		}
	}()
	go func() {
		logger.Info("admin api started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin api: %w", err)
		}
	}()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	// 6. Плановые запуски через Redis (cron -> PUBLISH integrity:runs:trigger)
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	var triggersDone <-chan struct{}
	if engineApp.Redis != nil {
		triggersDone = engine.StartScanTriggers(appCtx, engineApp.Redis, logger, func(ctx context.Context, req engine.ScanRequest) {
			if _, err := engineApp.Coordinator.RunScan(ctx, req); err != nil {
				logger.Warn("scheduled scan failed", zap.String("tenant_id", req.TenantID), zap.Error(err))
			}
		})
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		logger.Info("integrityd stopping", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	healthSrv.Shutdown()
	appCancel()

	// Идущий прогон успевает доработать в пределах WriteTimeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin api shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	// Плановый прогон дорабатывает до engineApp.Close (пул и Redis нужны ему до конца)
	if triggersDone != nil {
		<-triggersDone
	}

	logger.Info("integrityd exited properly")
	return runErr
}
