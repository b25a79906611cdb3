package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/datingchat-server/internal/config"
	"github.com/vovakirdan/datingchat-server/internal/core"
	"github.com/vovakirdan/datingchat-server/internal/observability"
	"github.com/vovakirdan/datingchat-server/internal/proto"
	"github.com/vovakirdan/datingchat-server/internal/utils"
)

const peerParam = "user"

// WSHandler authenticates the upgrade request and bridges the socket to a
// core.Session.
type WSHandler struct {
	kind   core.SessionKind
	orch   *core.Orchestrator
	hub    *core.Hub
	tokens TokenValidator
	cfg    *config.Config
	log    *zerolog.Logger
}

// NewWSHandler builds a websocket handler for one session kind.
func NewWSHandler(kind core.SessionKind, orch *core.Orchestrator, hub *core.Hub, tokens TokenValidator, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	l := logger.With().Str("component", "ws").Str("kind", string(kind)).Logger()
	return &WSHandler{
		kind:   kind,
		orch:   orch,
		hub:    hub,
		tokens: tokens,
		cfg:    cfg,
		log:    &l,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeJSONError(w, stdhttp.StatusUnauthorized, "missing or malformed authorization")
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws token rejected")
		writeJSONError(w, stdhttp.StatusUnauthorized, "invalid token")
		return
	}

	peer := strings.TrimSpace(r.URL.Query().Get(peerParam))
	if h.kind == core.SessionChat && peer == "" {
		writeJSONError(w, stdhttp.StatusBadRequest, "user query parameter is required")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	session := h.newSession(claims.Username, peer)
	observability.IncWSActive(string(h.kind))
	defer observability.DecWSActive(string(h.kind))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Disconnect must run even though the request context is gone by then.
	defer session.OnClose(context.WithoutCancel(ctx))

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.writeLoop(ctx, conn, session)
	}()

	if _, err := session.OnOpen(ctx); err != nil {
		h.log.Info().Err(err).Str("user", session.Username()).Str("peer", session.Peer()).Msg("ws handshake rejected")
		_ = wsjson.Write(ctx, conn, errorOutbound(err))
		conn.Close(websocket.StatusPolicyViolation, core.CodeOf(err))
		return
	}
	h.log.Debug().Str("connection_id", session.ID()).Str("user", session.Username()).Msg("ws session opened")

	go func() {
		errCh <- h.readLoop(ctx, conn, session)
	}()

	err = <-errCh
	cancel()
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("connection_id", session.ID()).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) newSession(username, peer string) *core.Session {
	id := utils.NewID()
	if h.kind == core.SessionPresence {
		return core.NewPresenceSession(h.orch, h.hub, id, username, h.cfg.SendBuffer)
	}
	return core.NewChatSession(h.orch, h.hub, id, username, peer, h.cfg.SendBuffer)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerMinute)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			h.log.Debug().Err(err).Str("connection_id", session.ID()).Msg("read ws inbound")
			return err
		}

		reply := h.handleInbound(ctx, session, limiter, inbound)
		if reply == nil {
			continue
		}
		if err := wsjson.Write(ctx, conn, reply); err != nil {
			return err
		}
	}
}

// handleInbound runs one client frame and returns the error frame to answer
// with, if any. Successful sends are acknowledged by the new_message broadcast.
func (h *WSHandler) handleInbound(ctx context.Context, session *core.Session, limiter *rateLimiter, inbound proto.Inbound) *proto.Outbound {
	switch inbound.Type {
	case proto.InboundTypeSend:
		var data proto.SendData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			out := protocolError("malformed send data")
			return &out
		}
		if !limiter.allow() {
			out := errorOutbound(core.NewError(core.ErrCodeRateLimited, "too many messages"))
			return &out
		}
		if _, err := session.Send(ctx, data.Recipient, data.Content); err != nil {
			out := errorOutbound(err)
			return &out
		}
		return nil
	default:
		out := protocolError("unknown message type")
		return &out
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, session *core.Session) error {
	events := session.Events()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Debug().Err(err).Str("connection_id", session.ID()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func writeJSONError(w stdhttp.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}
