// Package api serves the read-only HTTP view of flows, devices and topology.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"NetSpeedMonitor/internal/model"
	"NetSpeedMonitor/internal/topology"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FlowSource provides point-in-time copies of the aggregate store.
type FlowSource interface {
	Snapshot() *model.Snapshot
}

// CaptureState reports the capture manager's state.
type CaptureState interface {
	Started() bool
	Devices() []model.DeviceStatus
	Topology() *topology.Topology
}

// Handler holds the dependencies for API handlers.
type Handler struct {
	flows   FlowSource
	capture CaptureState
	started time.Time
}

// FlowView is the JSON form of one flow.
type FlowView struct {
	LocalIP         string    `json:"local_ip"`
	LocalPort       uint16    `json:"local_port"`
	RemoteIP        string    `json:"remote_ip"`
	RemotePort      uint16    `json:"remote_port"`
	Protocol        string    `json:"protocol"`
	UploadBytes     uint64    `json:"upload_bytes"`
	DownloadBytes   uint64    `json:"download_bytes"`
	UploadPackets   uint64    `json:"upload_packets"`
	DownloadPackets uint64    `json:"download_packets"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
}

// FlowsResponse is returned by GET /api/v1/flows.
type FlowsResponse struct {
	TakenAt       time.Time  `json:"taken_at"`
	TotalFlows    int        `json:"total_flows"`
	UploadBytes   uint64     `json:"upload_bytes"`
	DownloadBytes uint64     `json:"download_bytes"`
	Flows         []FlowView `json:"flows"`
}

// SubnetView is the JSON form of one local subnet.
type SubnetView struct {
	Interface string `json:"interface"`
	Host      string `json:"host"`
	Prefix    string `json:"prefix"`
}

// StatusResponse is returned by GET /api/v1/status.
type StatusResponse struct {
	Capturing bool   `json:"capturing"`
	Devices   int    `json:"devices"`
	Subnets   int    `json:"subnets"`
	Flows     int    `json:"flows"`
	Uptime    string `json:"uptime"`
}

// NewRouter registers every route. gatherer backs /metrics and may be nil.
func NewRouter(flows FlowSource, state CaptureState, gatherer prometheus.Gatherer) *mux.Router {
	h := &Handler{flows: flows, capture: state, started: time.Now()}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/flows", h.flowsHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/flows/{local_ip}", h.flowsByHostHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/topology", h.topologyHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/devices", h.devicesHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/status", h.statusHandler).Methods(http.MethodGet)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// Server wraps the HTTP server lifecycle.
type Server struct {
	srv *http.Server
}

// NewServer creates a server on addr serving handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		log.Printf("API server starting on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("API server on %s failed: %v", s.srv.Addr, err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (h *Handler) flowsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, buildFlows(h.flows.Snapshot(), func(model.FlowRecord) bool { return true }, limit))
}

func (h *Handler) flowsByHostHandler(w http.ResponseWriter, r *http.Request) {
	host, err := netip.ParseAddr(mux.Vars(r)["local_ip"])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid local_ip: %v", err), http.StatusBadRequest)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	host = host.Unmap()
	writeJSON(w, buildFlows(h.flows.Snapshot(), func(f model.FlowRecord) bool { return f.Key.LocalIP == host }, limit))
}

func (h *Handler) topologyHandler(w http.ResponseWriter, _ *http.Request) {
	subnets := h.capture.Topology().Subnets()
	out := make([]SubnetView, 0, len(subnets))
	for _, s := range subnets {
		out = append(out, SubnetView{Interface: s.Interface, Host: s.Host.String(), Prefix: s.Prefix().String()})
	}
	writeJSON(w, out)
}

func (h *Handler) devicesHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.capture.Devices())
}

func (h *Handler) statusHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, StatusResponse{
		Capturing: h.capture.Started(),
		Devices:   len(h.capture.Devices()),
		Subnets:   h.capture.Topology().Len(),
		Flows:     len(h.flows.Snapshot().Flows),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	})
}

// buildFlows keeps the snapshot's order, which is by total bytes descending.
func buildFlows(s *model.Snapshot, keep func(model.FlowRecord) bool, limit int) FlowsResponse {
	resp := FlowsResponse{TakenAt: s.TakenAt, Flows: []FlowView{}}
	for _, f := range s.Flows {
		if !keep(f) {
			continue
		}
		resp.TotalFlows++
		resp.UploadBytes += f.UploadBytes
		resp.DownloadBytes += f.DownloadBytes
		if limit > 0 && len(resp.Flows) >= limit {
			continue
		}
		resp.Flows = append(resp.Flows, FlowView{
			LocalIP:         f.Key.LocalIP.String(),
			LocalPort:       f.Key.LocalPort,
			RemoteIP:        f.Key.RemoteIP.String(),
			RemotePort:      f.Key.RemotePort,
			Protocol:        f.Protocol.String(),
			UploadBytes:     f.UploadBytes,
			DownloadBytes:   f.DownloadBytes,
			UploadPackets:   f.UploadPackets,
			DownloadPackets: f.DownloadPackets,
			FirstSeen:       f.FirstSeen,
			LastSeen:        f.LastSeen,
		})
	}
	return resp
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: failed to encode response: %v", err)
	}
}
