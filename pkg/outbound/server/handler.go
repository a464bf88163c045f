/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package server exposes the outbound scheduler over HTTP.
//
// Routes:
//
//	PUT    /api/v1/connections/{id}                    open (or reset) a connection
//	DELETE /api/v1/connections/{id}                    close a connection
//	GET    /api/v1/connections/{id}                    connection snapshot
//	GET    /api/v1/connections                         snapshots of all connections
//	POST   /api/v1/connections/{id}/messages           enqueue a message
//	POST   /api/v1/connections/{id}/teleport           start a teleport boost
//	POST   /api/v1/connections/{id}/teleport/complete  end a teleport boost
//	POST   /api/v1/connections/{id}/ping               report a ping sample
//	GET    /api/v1/stats                               aggregate statistics
//	POST   /api/v1/stats/reset                         reset statistics
//	GET    /ws                                         WebSocket gateway
//	GET    /healthz                                    liveness
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	logutil "sigs.k8s.io/outbound-scheduler/pkg/common/observability/logging"
	"sigs.k8s.io/outbound-scheduler/pkg/common/observability/tracing"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/scheduler"
	"sigs.k8s.io/outbound-scheduler/pkg/outbound/types"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Scheduler is the part of `*scheduler.Scheduler` the API serves.
type Scheduler interface {
	OnConnectionOpen(id types.ConnectionID)
	OnConnectionClose(id types.ConnectionID) bool
	OnTeleportStart(id types.ConnectionID) bool
	OnTeleportComplete(id types.ConnectionID, success bool) bool
	OnPingSample(id types.ConnectionID, pingMillis int64)
	TryEnqueue(id types.ConnectionID, msg types.Message, hint *types.PriorityClass) error
	Snapshot(id types.ConnectionID) (scheduler.ConnectionSnapshot, bool)
	Snapshots() []scheduler.ConnectionSnapshot
	Stats() scheduler.Stats
	ResetStats()
}

var _ Scheduler = &scheduler.Scheduler{}

// EnqueueRequest is the body of a message submission.
type EnqueueRequest struct {
	// ID is minted when empty.
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	// Priority overrides the classifier when set.
	Priority *types.PriorityClass `json:"priority,omitempty"`
	Payload  json.RawMessage      `json:"payload,omitempty"`
}

// EnqueueResponse is returned for an accepted message.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// TeleportCompleteRequest is the body of a teleport completion.
type TeleportCompleteRequest struct {
	Success bool `json:"success"`
}

// PingRequest is the body of a ping sample.
type PingRequest struct {
	PingMillis int64 `json:"pingMillis"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

type handler struct {
	scheduler Scheduler
	logger    logr.Logger
}

// NewHandler returns the HTTP API of s. The WebSocket gateway is mounted on /ws when gateway is not nil.
func NewHandler(s Scheduler, gateway http.Handler, logger logr.Logger) http.Handler {
	h := &handler{scheduler: s, logger: logger.WithName("api")}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/connections", h.listConnections).Methods(http.MethodGet)
	api.HandleFunc("/connections/{id}", h.openConnection).Methods(http.MethodPut)
	api.HandleFunc("/connections/{id}", h.closeConnection).Methods(http.MethodDelete)
	api.HandleFunc("/connections/{id}", h.getConnection).Methods(http.MethodGet)
	api.HandleFunc("/connections/{id}/messages", h.enqueue).Methods(http.MethodPost)
	api.HandleFunc("/connections/{id}/teleport", h.startTeleport).Methods(http.MethodPost)
	api.HandleFunc("/connections/{id}/teleport/complete", h.completeTeleport).Methods(http.MethodPost)
	api.HandleFunc("/connections/{id}/ping", h.ping).Methods(http.MethodPost)
	api.HandleFunc("/stats", h.stats).Methods(http.MethodGet)
	api.HandleFunc("/stats/reset", h.resetStats).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	if gateway != nil {
		r.Handle("/ws", gateway).Methods(http.MethodGet)
	}
	return r
}

func connectionID(r *http.Request) types.ConnectionID {
	return types.ConnectionID(mux.Vars(r)["id"])
}

func (h *handler) listConnections(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.Snapshots())
}

func (h *handler) openConnection(w http.ResponseWriter, r *http.Request) {
	id := connectionID(r)
	h.scheduler.OnConnectionOpen(id)
	snap, _ := h.scheduler.Snapshot(id)
	h.writeJSON(w, http.StatusCreated, snap)
}

func (h *handler) closeConnection(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.OnConnectionClose(connectionID(r)) {
		h.writeError(w, http.StatusNotFound, types.ErrUnknownConnection)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getConnection(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.scheduler.Snapshot(connectionID(r))
	if !ok {
		h.writeError(w, http.StatusNotFound, types.ErrUnknownConnection)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *handler) enqueue(w http.ResponseWriter, r *http.Request) {
	id := connectionID(r)
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	_, span := tracing.Tracer().Start(ctx, "api.enqueue", trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("outbound.connection_id", id.String())))
	defer span.End()

	var req EnqueueRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("message type is required"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	msg := &types.RawMessage{MessageID: req.ID, Tag: req.Type, Payload: req.Payload}

	err := h.scheduler.TryEnqueue(id, msg, req.Priority)
	span.SetAttributes(attribute.String("outbound.message_type", req.Type))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: req.ID})
	case errors.Is(err, types.ErrUnknownConnection):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, types.ErrAdmissionRejected):
		h.writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, types.ErrSchedulerStopped):
		h.writeError(w, http.StatusServiceUnavailable, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

func (h *handler) startTeleport(w http.ResponseWriter, r *http.Request) {
	if !h.scheduler.OnTeleportStart(connectionID(r)) {
		h.writeError(w, http.StatusNotFound, types.ErrUnknownConnection)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) completeTeleport(w http.ResponseWriter, r *http.Request) {
	req := TeleportCompleteRequest{Success: true}
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	if !h.scheduler.OnTeleportComplete(connectionID(r), req.Success) {
		h.writeError(w, http.StatusConflict, errors.New("no teleport boost in progress"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) ping(w http.ResponseWriter, r *http.Request) {
	var req PingRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := connectionID(r)
	if _, ok := h.scheduler.Snapshot(id); !ok {
		h.writeError(w, http.StatusNotFound, types.ErrUnknownConnection)
		return
	}
	h.scheduler.OnPingSample(id, req.PingMillis)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.Stats())
}

func (h *handler) resetStats(w http.ResponseWriter, _ *http.Request) {
	h.scheduler.ResetStats()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.V(logutil.DEBUG).Info("Failed to write response", "err", err.Error())
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, err error) {
	h.logger.V(logutil.TRACE).Info("Request failed", "status", status, "err", err.Error())
	h.writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
