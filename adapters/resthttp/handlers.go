// Package resthttp is the remote web API over the throttle: command
// intake, state reads, health and metrics exposition. Commands submitted
// here carry WebApi authority.
package resthttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"traction/engine"
	"traction/engine/command"
	"traction/engine/telemetry/health"
	"traction/engine/telemetry/logging"
	"traction/engine/transition"
)

// Controller is the slice of the runtime loop the handlers need.
type Controller interface {
	Submit(cmd command.Command, src command.Source) (engine.Ack, error)
	State() engine.ThrottleState
	Snapshot() engine.Snapshot
}

// Options configure the handler set.
type Options struct {
	Controller Controller
	Health     func(ctx context.Context) health.Snapshot // optional
	Metrics    http.Handler                              // optional
	Logger     logging.Logger
	// Source overrides the authority commands are tagged with; defaults
	// to WebApi.
	Source *command.Source
}

type commandResponse struct {
	RequestID string               `json:"request_id"`
	Result    string               `json:"result"` // accepted | rejected
	Outcome   string               `json:"outcome,omitempty"`
	ClampedTo *float64             `json:"clamped_to,omitempty"`
	Reason    string               `json:"reason,omitempty"`
	Remaining *uint64              `json:"lockout_remaining_ms,omitempty"`
	State     engine.ThrottleState `json:"state"`
}

// NewMux assembles the adapter's routes.
func NewMux(opts Options) *http.ServeMux {
	log := opts.Logger
	if log == nil {
		log = logging.New(nil)
	}
	src := command.SourceWebAPI
	if opts.Source != nil {
		src = *opts.Source
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleCommand(w, r, opts.Controller, src, log)
	})
	mux.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, opts.Controller.State())
	})
	mux.HandleFunc("/api/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, opts.Controller.Snapshot())
	})
	if opts.Health != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			snap := opts.Health(r.Context())
			code := http.StatusOK
			if snap.Overall == health.StatusUnhealthy {
				code = http.StatusServiceUnavailable
			}
			writeJSON(w, code, snap)
		})
	}
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	return mux
}

func handleCommand(w http.ResponseWriter, r *http.Request, ctrl Controller, src command.Source, log logging.Logger) {
	requestID := uuid.NewString()
	body := http.MaxBytesReader(w, r.Body, 4096)
	defer func() { _ = body.Close() }()

	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	cmd, err := command.Unmarshal(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{
			RequestID: requestID, Result: "rejected", Reason: err.Error(), State: ctrl.State(),
		})
		return
	}

	ack, err := ctrl.Submit(cmd, src)
	if err != nil {
		resp := commandResponse{RequestID: requestID, Result: "rejected", State: ctrl.State()}
		code := http.StatusConflict
		var lockout *engine.LockoutError
		var locked *transition.LockedError
		switch {
		case errors.As(err, &lockout):
			resp.Reason = "lockout"
			resp.Remaining = &lockout.RemainingMillis
			code = http.StatusLocked
		case errors.As(err, &locked):
			resp.Reason = "locked_transition"
			code = http.StatusLocked
		case errors.Is(err, transition.ErrQueueFull):
			resp.Reason = "queue_full"
			code = http.StatusTooManyRequests
		default:
			resp.Reason = err.Error()
			code = http.StatusInternalServerError
		}
		log.InfoCtx(r.Context(), "command rejected",
			slog.String("request_id", requestID), slog.String("reason", resp.Reason))
		writeJSON(w, code, resp)
		return
	}

	log.InfoCtx(r.Context(), "command accepted",
		slog.String("request_id", requestID),
		slog.String("kind", cmd.Kind.String()),
		slog.String("outcome", ack.Outcome.String()))
	writeJSON(w, http.StatusOK, commandResponse{
		RequestID: requestID,
		Result:    "accepted",
		Outcome:   ack.Outcome.String(),
		ClampedTo: ack.ClampedTo,
		State:     ctrl.State(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
