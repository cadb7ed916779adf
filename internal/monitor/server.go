// Package monitor は実行中のファズランを観測するHTTPサーバーを提供する
//
// イベントバスに流れる実行イベントをWebSocketで配信し、
// 現在の状態と直近のレポートをJSONで、Prometheusメトリクスを
// /metricsで公開する。
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"cluster-fuzz/internal/events"
	"cluster-fuzz/internal/fuzzer"
	"cluster-fuzz/internal/logger"
	"cluster-fuzz/internal/metrics"
)

// Server は監視サーバー
type Server struct {
	addr string
	bus  *events.Bus

	mu        sync.RWMutex
	running   bool
	scenario  string
	reports   []*fuzzer.RunReport
	wsClients map[*websocket.Conn]bool

	registry *prometheus.Registry
	server   *http.Server
}

// NewServer は新しい監視サーバーを作成する
func NewServer(addr string, bus *events.Bus) (*Server, error) {
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		return nil, err
	}

	return &Server{
		addr:      addr,
		bus:       bus,
		wsClients: make(map[*websocket.Conn]bool),
		registry:  registry,
	}, nil
}

// Start はサーバーを開始する
// ctxの終了でシャットダウンする
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	if s.bus != nil {
		go s.relayEvents(ctx)
	}

	logger.Info("monitor", "Monitor server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// SetRunning は実行状態を更新する
func (s *Server) SetRunning(running bool, scenarioID string) {
	s.mu.Lock()
	s.running = running
	s.scenario = scenarioID
	s.mu.Unlock()
}

// RecordReport は完了したランのレポートを記録する
func (s *Server) RecordReport(report *fuzzer.RunReport) {
	s.mu.Lock()
	s.reports = append(s.reports, report)
	s.mu.Unlock()
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running    bool   `json:"running"`
	ScenarioID string `json:"scenario_id,omitempty"`
	Runs       int    `json:"runs"`
	Failed     int    `json:"failed"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	resp := StatusResponse{
		Running:    s.running,
		ScenarioID: s.scenario,
		Runs:       len(s.reports),
	}
	for _, rep := range s.reports {
		if !rep.Passed {
			resp.Failed++
		}
	}
	s.mu.RUnlock()

	s.writeJSON(w, resp)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	reports := make([]*fuzzer.RunReport, len(s.reports))
	copy(reports, s.reports)
	s.mu.RUnlock()

	s.writeJSON(w, reports)
}

// handleWebSocket は接続を登録し、切断まで保持する
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// WebSocket中継はブロードキャスト中もイベントを取りこぼさないよう
// 既定より大きいバッファで購読する
const relayBufferSize = 1024

// relayEvents はイベントバスの実行イベントをWebSocketへ中継する
func (s *Server) relayEvents(ctx context.Context) {
	ch := s.bus.SubscribeBuffered(relayBufferSize)
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(event)
		}
	}
}

func (s *Server) broadcast(data interface{}) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("monitor", "Failed to encode JSON: %v", err)
	}
}
