// Package server поднимает gRPC-сервер со стандартным сервисом проверки здоровья.
//
// Пустое имя сервиса отвечает за процесс целиком, ServiceScheduler переходит
// в SERVING, когда подключён шлюз группы и сверка может удалять участников.
package server

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceScheduler имя сервиса сверки в health-протоколе
const ServiceScheduler = "teleguard.scheduler"

// HealthServer gRPC-сервер проверки здоровья
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	log    *slog.Logger
}

// NewHealthServer создает новый экземпляр HealthServer.
func NewHealthServer(logger *slog.Logger) *HealthServer {
	srv := grpc.NewServer()
	h := health.NewServer()
	healthpb.RegisterHealthServer(srv, h)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(ServiceScheduler, healthpb.HealthCheckResponse_NOT_SERVING)

	return &HealthServer{
		srv:    srv,
		health: h,
		log:    logger,
	}
}

// SetSchedulerReady меняет статус сервиса сверки
func (s *HealthServer) SetSchedulerReady(ready bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceScheduler, status)
	s.log.Info("scheduler health changed", slog.String("status", status.String()))
}

// Serve принимает соединения до остановки
func (s *HealthServer) Serve(lis net.Listener) error {
	const op = "grpc.HealthServer.Serve"
	s.log.Info("grpc health server started", slog.String("address", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop переводит все сервисы в NOT_SERVING и останавливает сервер
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
