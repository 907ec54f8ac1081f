package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nexusclaw/agent-vault-protocol/engine"
	"github.com/nexusclaw/agent-vault-protocol/interfaces"
	"github.com/nexusclaw/agent-vault-protocol/metrics"
)

// Handler bridges HTTP requests to the protocol engine. Each request body
// is one request envelope; the response body is the response envelope.
type Handler struct {
	engine  *engine.Engine
	metrics *metrics.MetricsServer
	log     *slog.Logger
}

// NewHandler creates a command handler. metricsSrv may be nil when metrics
// are disabled.
func NewHandler(eng *engine.Engine, metricsSrv *metrics.MetricsServer, log *slog.Logger) *Handler {
	return &Handler{engine: eng, metrics: metricsSrv, log: log}
}

// HandleCommand serves POST /api/v1/command. The engine owns all protocol
// error reporting, so the HTTP status is 200 for every well-delivered
// request; only transport failures use other statuses.
func (h *Handler) HandleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, interfaces.MaxJSONLen+1))
	if err != nil {
		h.log.Debug("Failed to read request body", "err", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	start := time.Now()
	out := h.engine.Process(r.Context(), body)
	h.record(body, out, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// record extracts the op and error labels from the envelopes. Unparseable
// requests are counted under op "unknown".
func (h *Handler) record(req, resp []byte, duration time.Duration) {
	if h.metrics == nil {
		return
	}

	var reqPeek struct {
		Op string `json:"op"`
	}
	op := "unknown"
	if err := json.Unmarshal(req, &reqPeek); err == nil && reqPeek.Op != "" {
		op = reqPeek.Op
	}
	h.metrics.RecordCommand(op, duration)

	var respPeek struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(resp, &respPeek); err == nil && !respPeek.OK {
		h.metrics.RecordError(op, respPeek.Error)
	}
}
