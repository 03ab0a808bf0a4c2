package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/antoniostano/finchat/internal/agents"
	"github.com/antoniostano/finchat/internal/chat"
	"github.com/antoniostano/finchat/internal/config"
	"github.com/antoniostano/finchat/internal/insights"
	"github.com/antoniostano/finchat/internal/llm"
	"github.com/antoniostano/finchat/internal/memory"
	"github.com/antoniostano/finchat/internal/observability"
	"github.com/antoniostano/finchat/internal/snapshot"
	"github.com/antoniostano/finchat/internal/txparse"
)

const userIDHeader = "X-User-ID"

// Assistant is the conversation surface the handlers drive.
type Assistant interface {
	Chat(ctx context.Context, userID string, req chat.Request) agents.Reply
	GetContext(ctx context.Context, userID string) (snapshot.Snapshot, error)
	SyncContext(ctx context.Context, userID string, snap snapshot.Snapshot) error
	History(ctx context.Context, userID string) ([]memory.Turn, error)
	ClearHistory(ctx context.Context, userID string) error
}

type InsightGenerator interface {
	Generate(ctx context.Context, userID string, req insights.Request) insights.Insights
}

type TransactionParser interface {
	Parse(ctx context.Context, text, locale string) (txparse.Transaction, error)
}

// Deps bundles the services behind the API. Insights and Parser are optional;
// their routes answer 501 when unset.
type Deps struct {
	Assistant Assistant
	Insights  InsightGenerator
	Parser    TransactionParser
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
}

type Server struct {
	cfg       config.Config
	assistant Assistant
	insights  InsightGenerator
	parser    TransactionParser
	metrics   *observability.Metrics
	logger    zerolog.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, deps Deps) *Server {
	return &Server{
		cfg:       cfg,
		assistant: deps.Assistant,
		insights:  deps.Insights,
		parser:    deps.Parser,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only connect from the same origin unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(s.logger))
	r.Use(Recoverer(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/ai", func(r chi.Router) {
		r.Use(RequireUser)
		r.Post("/chat", s.handleChat)
		r.Get("/chat/ws", s.handleChatWS)
		r.Get("/context", s.handleGetContext)
		r.Post("/sync-context", s.handleSyncContext)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Post("/insights", s.handleInsights)
		r.Post("/parse-transaction", s.handleParseTransaction)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"llm_mode": s.llmMode(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.assistant == nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "assistant not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": s.storeMode(),
	})
}

type chatRequest struct {
	Message string          `json:"message"`
	Locale  string          `json:"locale,omitempty"`
	Context json.RawMessage `json:"context,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "message is required")
		return
	}
	reply := s.assistant.Chat(r.Context(), userIDFrom(r.Context()), chat.Request{
		Message: req.Message,
		Locale:  req.Locale,
		Context: clientContext(req.Context),
	})
	respondJSON(w, http.StatusOK, normalizeReply(reply))
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	snap, err := s.assistant.GetContext(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSyncContext(w http.ResponseWriter, r *http.Request) {
	var snap snapshot.Snapshot
	if err := decodeJSON(r, &snap); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.assistant.SyncContext(r.Context(), userIDFrom(r.Context()), snap); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.assistant.History(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	items := make([]historyItem, 0, len(turns))
	for _, t := range turns {
		items = append(items, historyItem{Role: string(t.Role), Content: t.Content, CreatedAt: t.CreatedAt})
	}
	respondJSON(w, http.StatusOK, items)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.assistant.ClearHistory(r.Context(), userIDFrom(r.Context())); err != nil {
		s.respondStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type insightsRequest struct {
	TotalIncome           *float64 `json:"totalIncome"`
	TotalExpense          *float64 `json:"totalExpense"`
	TotalDebt             *float64 `json:"totalDebt"`
	RecentSpendingPattern string   `json:"recentSpendingPattern,omitempty"`
	TimeRange             string   `json:"timeRange,omitempty"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.insights == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "insights not configured")
		return
	}
	var req insightsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.TotalIncome == nil || req.TotalExpense == nil || req.TotalDebt == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "totalIncome, totalExpense and totalDebt are required")
		return
	}
	out := s.insights.Generate(r.Context(), userIDFrom(r.Context()), insights.Request{
		TotalIncome:           *req.TotalIncome,
		TotalExpense:          *req.TotalExpense,
		TotalDebt:             *req.TotalDebt,
		RecentSpendingPattern: req.RecentSpendingPattern,
		TimeRange:             req.TimeRange,
	})
	respondJSON(w, http.StatusOK, out)
}

type parseTransactionRequest struct {
	Text   string `json:"text"`
	Locale string `json:"locale,omitempty"`
}

func (s *Server) handleParseTransaction(w http.ResponseWriter, r *http.Request) {
	if s.parser == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "transaction parser not configured")
		return
	}
	var req parseTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	tx, err := s.parser.Parse(r.Context(), req.Text, req.Locale)
	if err != nil {
		switch llm.KindOf(err) {
		case llm.KindParse:
			respondError(w, http.StatusUnprocessableEntity, "unparsable_transaction", err.Error())
		case llm.KindConfiguration:
			respondError(w, http.StatusServiceUnavailable, "llm_unconfigured", err.Error())
		default:
			respondError(w, http.StatusBadGateway, "llm_unavailable", err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, tx)
}

func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, snapshot.ErrEncode), errors.Is(err, snapshot.ErrDecode):
		respondError(w, http.StatusUnprocessableEntity, "invalid_snapshot", err.Error())
	default:
		requestLogger(r, s.logger).Error().Err(err).Msg("store operation failed")
		respondError(w, http.StatusInternalServerError, "store_error", "storage unavailable")
	}
}

func (s *Server) llmMode() string {
	mode := strings.ToLower(strings.TrimSpace(s.cfg.LLMMode))
	if mode == "" {
		return "auto"
	}
	return mode
}

func (s *Server) storeMode() string {
	if strings.TrimSpace(s.cfg.DatabaseURL) == "" {
		return "in-memory"
	}
	return "postgres"
}

// clientContext flattens the optional client context to text. Strings are used
// as is, any other JSON value is passed through compacted.
func clientContext(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return ""
	}
	return buf.String()
}

func normalizeReply(reply agents.Reply) agents.Reply {
	if reply.Suggestions == nil {
		reply.Suggestions = []string{}
	}
	return reply
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
