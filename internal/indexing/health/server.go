package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name registered with the gRPC health service.
const ServiceName = "chainsync"

const refreshInterval = 5 * time.Second

// Server provides HTTP endpoints for health monitoring and, when a gRPC port
// is configured, the standard gRPC health service.
type Server struct {
	monitor  *Monitor
	server   *http.Server
	grpcAddr string
	grpc     *grpc.Server
	grpcHS   *grpchealth.Server
	logger   *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewServer creates a new health server. A zero grpcPort disables gRPC.
func NewServer(monitor *Monitor, port, grpcPort int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		logger: logger.With("component", "health"),
		stop:   make(chan struct{}),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	if grpcPort > 0 {
		s.grpcAddr = fmt.Sprintf(":%d", grpcPort)
		s.grpc = grpc.NewServer()
		s.grpcHS = grpchealth.NewServer()
		healthpb.RegisterHealthServer(s.grpc, s.grpcHS)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server and the gRPC server if configured.
// It blocks until both have stopped.
func (s *Server) Start() error {
	var g errgroup.Group
	g.Go(func() error {
		s.logger.Info("health server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.grpc != nil {
		lis, err := net.Listen("tcp", s.grpcAddr)
		if err != nil {
			s.server.Close()
			return fmt.Errorf("listen %s: %w", s.grpcAddr, err)
		}
		g.Go(func() error {
			s.logger.Info("grpc health listening", "addr", s.grpcAddr)
			return s.grpc.Serve(lis)
		})
		g.Go(func() error {
			ticker := time.NewTicker(refreshInterval)
			defer ticker.Stop()
			for {
				s.Refresh()
				select {
				case <-s.stop:
					return nil
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}

// Stop shuts down both servers.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.grpc != nil {
		s.grpcHS.Shutdown()
		s.grpc.GracefulStop()
	}
	return s.server.Shutdown(ctx)
}

// Refresh pushes the current report into the gRPC health service.
func (s *Server) Refresh() {
	if s.grpcHS == nil {
		return
	}
	status := healthpb.HealthCheckResponse_SERVING
	if s.monitor.CheckHealth().SystemStatus == StatusCritical {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.grpcHS.SetServingStatus("", status)
	s.grpcHS.SetServingStatus(ServiceName, status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth()

	response := map[string]string{"status": string(report.SystemStatus)}
	w.Header().Set("Content-Type", "application/json")

	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
