package core

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/qiminjie89/rtsession/internal/session"
	"github.com/qiminjie89/rtsession/pkg/logger"
)

// HealthService gRPC 健康检查中会话核心使用的服务名
const HealthService = "rtsession.Realtime"

// HealthStatus /health 返回体
type HealthStatus struct {
	Status        string  `json:"status"`
	Reason        string  `json:"reason,omitempty"`
	Realtime      string  `json:"realtime"`
	Game          string  `json:"game,omitempty"`
	RoomID        string  `json:"room_id,omitempty"`
	OnlineFriends int     `json:"online_friends"`
	Unread        int     `json:"unread_notifications"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Health 健康检查：gRPC health 服务与 HTTP /health、/metrics
type Health struct {
	core      *Core
	grpcAddr  string
	httpAddr  string
	metrics   string // 为空表示不暴露 /metrics
	metricAt  string // 独立的指标监听地址，可为空
	startedAt time.Time

	server *health.Server

	mu      sync.Mutex
	grpc    *grpc.Server
	servers []*http.Server
}

func newHealth(c *Core, grpcAddr, httpAddr, metricsPath, metricsAddr string) *Health {
	h := &Health{
		core:      c,
		grpcAddr:  grpcAddr,
		httpAddr:  httpAddr,
		metrics:   metricsPath,
		metricAt:  metricsAddr,
		startedAt: time.Now(),
		server:    health.NewServer(),
	}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.server.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Handlers 跟随通知通道的连接状态切换 gRPC 服务状态
func (h *Health) Handlers() session.Handlers {
	return session.Handlers{
		OnOpen: func(session.SocketID) {
			h.server.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
		},
		OnClose: func(session.CloseEvent) {
			h.server.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
		},
	}
}

// Check 查询 gRPC 健康状态，供本地探测与测试
func (h *Health) Check(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// start 按配置启动 gRPC 与 HTTP 服务，地址为空的跳过
func (h *Health) start(wg *sync.WaitGroup) error {
	if h.grpcAddr != "" {
		lis, err := net.Listen("tcp", h.grpcAddr)
		if err != nil {
			return err
		}
		gs := grpc.NewServer()
		healthpb.RegisterHealthServer(gs, h.server)

		h.mu.Lock()
		h.grpc = gs
		h.mu.Unlock()

		logger.Info("starting grpc health server", zap.String("addr", lis.Addr().String()))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				logger.Error("grpc health server error", zap.Error(err))
			}
		}()
	}

	if h.httpAddr != "" {
		h.serve("health", h.httpAddr, h.mux(), wg)
	}
	if h.metricAt != "" && h.metrics != "" && h.metricAt != h.httpAddr {
		mux := http.NewServeMux()
		mux.Handle(h.metrics, promhttp.Handler())
		h.serve("metrics", h.metricAt, mux, wg)
	}
	return nil
}

func (h *Health) serve(name, addr string, handler http.Handler, wg *sync.WaitGroup) {
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}
	h.mu.Lock()
	h.servers = append(h.servers, srv)
	h.mu.Unlock()

	logger.Info("starting "+name+" server", zap.String("addr", addr))
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(name+" server error", zap.Error(err))
		}
	}()
}

func (h *Health) stop(ctx context.Context) {
	h.mu.Lock()
	gs, servers := h.grpc, h.servers
	h.servers = nil
	h.mu.Unlock()

	h.server.Shutdown()
	if gs != nil {
		gs.GracefulStop()
	}
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("http server shutdown", zap.Error(err))
		}
	}
}

func (h *Health) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	if h.metrics != "" {
		mux.Handle(h.metrics, promhttp.Handler())
	}
	return mux
}

// healthHandler 通知通道已连接时返回 200
func (h *Health) healthHandler(w http.ResponseWriter, _ *http.Request) {
	snap := h.core.Snapshot()

	status := &HealthStatus{
		Realtime:      snap.Realtime.String(),
		RoomID:        snap.RoomID,
		OnlineFriends: snap.OnlineFriends,
		Unread:        snap.Unread,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	}
	if snap.RoomID != "" {
		status.Game = snap.Game.String()
	}

	code := http.StatusOK
	switch {
	case !snap.LoggedIn:
		status.Status = "idle"
		status.Reason = "logged_out"
	case snap.Realtime == session.StateConnected:
		status.Status = "healthy"
	default:
		status.Status = "unhealthy"
		status.Reason = "realtime_disconnected"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
