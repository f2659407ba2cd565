// Copyright 2024-2026 Aiku AI

package proxy

import (
	"encoding/json"
	"net/http"
	"time"
)

// adminStatus is the /api/status response body.
type adminStatus struct {
	BotUser        string `json:"bot_user"`
	Uptime         string `json:"uptime"`
	LiveMappings   int    `json:"live_mappings"`
	PresenceMode   string `json:"presence_mode"`
	PresenceStatus string `json:"presence_status,omitempty"`
	Activity       string `json:"activity,omitempty"`
}

// StartAdmin launches the read-only introspection HTTP API on addr and
// returns the server so main can shut it down. Endpoints: GET /healthz and
// GET /api/status.
func (e *Engine) StartAdmin(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.handleHealthz)
	mux.HandleFunc("/api/status", e.handleAdminStatus)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		e.log.Info().Str("addr", addr).Msg("Starting admin API")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.log.Error().Err(err).Msg("Admin API error")
		}
	}()
	return server
}

func (e *Engine) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (e *Engine) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mode, status, activity := e.PresenceSnapshot()
	resp := adminStatus{
		BotUser:        string(e.gateway.BotUser()),
		Uptime:         time.Since(e.startedAt).Round(time.Second).String(),
		LiveMappings:   e.store.Len(),
		PresenceMode:   mode.String(),
		PresenceStatus: string(status),
	}
	if activity != nil {
		resp.Activity = string(activity.Type) + " " + activity.Name
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
