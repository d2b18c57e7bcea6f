package scheduler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/twitter/devfarm/common/log"
)

// RegisterHandlers mounts the scheduler control API onto mux: the
// JSON-over-HTTP surface cmd/devfarmctl talks to, exposing
// add_command/list/remove_all_commands/shutdown/shutdown_hard/join/status
// over the wire. Uses plain
// net/http + encoding/json rather than an RPC framework, matching
// common/endpoints's existing HTTP idiom for this repo.
func RegisterHandlers(mux *http.ServeMux, s *Scheduler) {
	mux.HandleFunc("/api/commands", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleAddCommand(w, r, s)
		case http.MethodGet:
			handleListCommands(w, r, s)
		case http.MethodDelete:
			handleRemoveAllCommands(w, r, s)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.Shutdown()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/api/shutdown_hard", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		grace := parseDurationMsParam(r, "grace_ms", 0)
		s.ShutdownHard(grace)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/api/join", func(w http.ResponseWriter, r *http.Request) {
		timeout := parseDurationMsParam(r, "timeout_ms", 0)
		ok := s.Join(timeout)
		writeJSON(w, joinResponse{Closed: ok, State: s.State().String()})
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		max, active := s.GetSchedulerStatus()
		writeJSON(w, statusResponse{MaxConcurrent: max, Active: active, State: s.State().String()})
	})
}

type addCommandRequest struct {
	Args []string `json:"args"`
}

type addCommandResponse struct {
	ID string `json:"id"`
}

type joinResponse struct {
	Closed bool   `json:"closed"`
	State  string `json:"state"`
}

type statusResponse struct {
	MaxConcurrent int    `json:"max_concurrent"`
	Active        int    `json:"active"`
	State         string `json:"state"`
}

func handleAddCommand(w http.ResponseWriter, r *http.Request, s *Scheduler) {
	var req addCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := s.AddCommand(req.Args)
	if err != nil {
		if err == ErrClosing {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, addCommandResponse{ID: cmd.ID})
}

func handleListCommands(w http.ResponseWriter, r *http.Request, s *Scheduler) {
	writeJSON(w, s.ListCommands())
}

func handleRemoveAllCommands(w http.ResponseWriter, r *http.Request, s *Scheduler) {
	removed := s.RemoveAllCommands()
	log.WithField("count", len(removed)).Info("devfarmd: removed all queued commands")
	w.WriteHeader(http.StatusNoContent)
}

func parseDurationMsParam(r *http.Request, name string, fallback time.Duration) time.Duration {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
