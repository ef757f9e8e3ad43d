package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/orderstore/internal/health"
	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/orderstore/internal/service/grpc"
	"github.com/vladislavdragonenkov/orderstore/internal/service/httpapi"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstore/internal/version"
)

// Run поднимает хранилище, gRPC, REST и сервер метрик и блокируется до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	storeMetrics := metrics.NewStoreMetrics()
	serviceOpts := []orders.Option{
		orders.WithMetrics(storeMetrics),
		orders.WithLogger(logger.WithField("layer", "service")),
	}

	// Kafka опциональна: без брокеров события не публикуются. Ошибка подключения уже залогирована.
	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)
	if kafkaProducer != nil {
		serviceOpts = append(serviceOpts, orders.WithPublisher(kafka.NewOrderEventPublisher(kafkaProducer, cfg.KafkaEventsTopic)))
	}

	orderService := orders.NewService(deps.store, serviceOpts...)

	ingestHandler := newIngestHandler(orderService, storeMetrics, logger.WithField("layer", "ingest"))
	consumer, err := initIngestConsumer(cfg, ingestHandler, kafkaProducer, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka ingest disabled")
	}
	if consumer != nil {
		if err := consumer.Start(ctx); err != nil {
			logger.WithError(err).Warn("failed to start kafka consumer")
		}
		defer stopConsumer(consumer, logger)
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}

	errCh := make(chan error, 2)

	var grpcServer *grpc.Server
	var grpcHealth *health.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
		}
		grpcServer, grpcHealth = newGRPCServer(orderService, logger)
		go func() {
			logger.Infof("gRPC сервер слушает %s", lis.Addr())
			errCh <- grpcServer.Serve(lis)
		}()
	}

	var apiSrv *http.Server
	if cfg.HTTPAddr != "" {
		lis, err := net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			stopGRPC(grpcServer, grpcHealth, cfg.ShutdownTimeout, logger)
			return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
		}
		apiSrv = &http.Server{
			Handler:           httpapi.NewHandler(orderService, healthHandler, logger.WithField("layer", "http")).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Infof("REST API слушает %s", lis.Addr())
			if err := apiSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, grpcHealth, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(apiSrv, logger)
		stopGRPC(grpcServer, grpcHealth, cfg.ShutdownTimeout, logger)
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer собирает gRPC-сервер с метриками, health и reflection.
func newGRPCServer(orderService grpcsvc.Orders, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterOrderService(grpcServer, grpcsvc.NewOrderService(orderService, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)

	// Register reflection service for grpcurl and load testing tools
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	return grpcServer, healthServer
}

// stopGRPC останавливает сервер мягко, по таймауту принудительно.
func stopGRPC(srv *grpc.Server, healthServer *health.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if healthServer != nil {
		healthServer.Shutdown()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	stoppedCh := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stoppedCh)
	}()
	select {
	case <-stoppedCh:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
