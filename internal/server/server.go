// Package server implements the switch fabric's control/monitoring HTTP
// API: a plain net/http + encoding/json surface standing in for the
// teacher's ConnectRPC server (_examples/dantte-lp-gobfd/internal/server/server.go),
// whose generated protobuf stubs were never retrieved in the example pack
// (see DESIGN.md). The handler-per-operation shape and sentinel-error-to-
// status mapping are kept; only the wire format changes.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/netfabric/govswitch/internal/fabric"
)

// Server serves the switch fabric's control/monitoring surface.
type Server struct {
	mgr *fabric.Manager
	log *slog.Logger
	mux *http.ServeMux
}

// New builds a Server backed by mgr.
func New(mgr *fabric.Manager, log *slog.Logger) *Server {
	s := &Server{mgr: mgr, log: log}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /switches", s.handleListSwitches)
	s.mux.HandleFunc("GET /switches/{id}", s.handleGetSwitch)
	s.mux.HandleFunc("GET /switches/{id}/mac-table", s.handleMACTable)
	s.mux.HandleFunc("GET /switches/{id}/ports", s.handlePorts)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSwitches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mgr.Switches())
}

// switchDetail is the response shape for one switch's full state.
type switchDetail struct {
	SwitchID  int                          `json:"switch_id"`
	Instance  string                       `json:"instance_id"`
	Counters  fabric.SwitchCountersSnapshot `json:"counters"`
	Uptime    string                       `json:"uptime"`
	PortCount int                          `json:"port_count"`
}

func (s *Server) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	sw, err := s.lookupSwitch(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, switchDetail{
		SwitchID:  sw.SwitchID,
		Instance:  sw.ID.String(),
		Counters:  snapshotCounters(sw),
		Uptime:    sw.Uptime().String(),
		PortCount: len(sw.Ports()),
	})
}

func (s *Server) handleMACTable(w http.ResponseWriter, r *http.Request) {
	sw, err := s.lookupSwitch(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sw.MACTable().Snapshot())
}

// portView is the response shape for one port.
type portView struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Configured bool   `json:"configured"`
	QueueStats any    `json:"queue_stats"`
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	sw, err := s.lookupSwitch(r)
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]portView, 0, len(sw.Ports()))
	for _, p := range sw.Ports() {
		kind := "host"
		if p.Kind == fabric.PortKindSwitchLink {
			kind = "switch-link"
		}
		views = append(views, portView{
			Index:      p.Index,
			Name:       p.Name,
			Kind:       kind,
			Configured: p.Configured,
			QueueStats: p.Queue.Stats(),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) lookupSwitch(r *http.Request) (*fabric.Switch, error) {
	idStr := r.PathValue("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse switch id %q: %w", idStr, errBadSwitchID)
	}
	sw, ok := s.mgr.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("switch %d: %w", id, fabric.ErrSwitchNotFound)
	}
	return sw, nil
}

var errBadSwitchID = errors.New("switch id must be an integer")

func snapshotCounters(sw *fabric.Switch) fabric.SwitchCountersSnapshot {
	c := &sw.Counters
	return fabric.SwitchCountersSnapshot{
		RxPackets:     c.RxPackets.Load(),
		TxPackets:     c.TxPackets.Load(),
		Drops:         c.Drops.Load(),
		TTLExpired:    c.TTLExpired.Load(),
		QoSClassified: c.QoSClassified.Load(),
		Flooded:       c.Flooded.Load(),
		Unicast:       c.Unicast.Load(),
		ServiceCycles: c.ServiceCycles.Load(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fabric.ErrSwitchNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadSwitchID):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
