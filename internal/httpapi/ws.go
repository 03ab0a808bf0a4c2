package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/finchat/internal/chat"
	"github.com/antoniostano/finchat/internal/protocol"
)

const (
	wsReadTimeout  = 120 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 45 * time.Second
)

// handleChatWS serves the chat exchange over a websocket. Messages from one
// connection are answered in order by a single worker.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connectionID := uuid.NewString()
	log := requestLogger(r, s.logger).With().Str("connection_id", connectionID).Str("user_id", userID).Logger()
	log.Info().Msg("chat websocket connected")

	// The request context ends when the handler returns; the connection owns its own.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	inbound := make(chan any, 64)
	outbound := make(chan any, 64)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		defer close(outbound)
		s.serveConnection(ctx, userID, connectionID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					cancel()
					return
				}
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					log.Warn().Err(err).Msg("websocket write failed")
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.observeWS("outbound", t)
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			parsed = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			}
		} else if t, ok := messageTypeOf(parsed); ok {
			s.observeWS("inbound", t)
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	// The peer is gone: drop queued messages instead of answering them.
	cancel()
	close(inbound)
	<-workerDone
	<-writerDone
	log.Info().Msg("chat websocket disconnected")
}

// serveConnection answers inbound messages until the channel closes or ctx
// ends. Parse errors queued by the reader are forwarded unchanged so writes
// stay on one goroutine.
func (s *Server) serveConnection(ctx context.Context, userID, connectionID string, inbound <-chan any, outbound chan<- any) {
	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}
	if !send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, ConnectionID: connectionID, Code: "connected"}) {
		return
	}

	for msg := range inbound {
		if ctx.Err() != nil {
			return
		}
		var out any
		switch m := msg.(type) {
		case protocol.ClientChat:
			reply := normalizeReply(s.assistant.Chat(ctx, userID, chat.Request{Message: m.Message, Locale: m.Locale}))
			out = protocol.AssistantReply{
				Type:        protocol.TypeAssistantReply,
				RequestID:   m.RequestID,
				Reply:       reply.Text,
				Suggestions: reply.Suggestions,
				Data:        reply.Data,
			}
		case protocol.ClientControl:
			out = s.handleControl(ctx, userID, connectionID, m)
		case protocol.ErrorEvent:
			out = m
		default:
			continue
		}
		if !send(out) {
			return
		}
	}
}

func (s *Server) handleControl(ctx context.Context, userID, connectionID string, m protocol.ClientControl) any {
	switch m.Action {
	case protocol.ActionClearHistory:
		if err := s.assistant.ClearHistory(ctx, userID); err != nil {
			return protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Code:      "clear_history_failed",
				Source:    "store",
				Retryable: true,
				Detail:    err.Error(),
			}
		}
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, ConnectionID: connectionID, Code: "history_cleared"}
	default:
		return protocol.SystemEvent{Type: protocol.TypeSystemEvent, ConnectionID: connectionID, Code: "pong"}
	}
}

func (s *Server) observeWS(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientChat:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
