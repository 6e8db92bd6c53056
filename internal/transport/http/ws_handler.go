package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"live-arena-service/internal/app"
	"live-arena-service/internal/domain"
	"live-arena-service/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 256 * 1024
)

const eventPong app.EventType = "pong"

// SessionEngine is the subset of the engine driven by websocket clients.
type SessionEngine interface {
	HostJoin(ctx context.Context, c *app.Conn, sessionID, hostID string) error
	ParticipantJoin(ctx context.Context, c *app.Conn, req app.JoinRequest) error
	Start(ctx context.Context, c *app.Conn, sessionID string) error
	End(ctx context.Context, c *app.Conn, sessionID string) error
	Submit(ctx context.Context, c *app.Conn, at app.Attempt) error
	ReportViolation(ctx context.Context, c *app.Conn, report app.ViolationReport) error
	Disconnect(ctx context.Context, c *app.Conn)
}

type WSHandler struct {
	engine    SessionEngine
	hub       *Hub
	validator *payloadValidator
	upgrader  websocket.Upgrader
	logger    zerolog.Logger
}

func NewWSHandler(engine SessionEngine, hub *Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		engine:    engine,
		hub:       hub,
		validator: newPayloadValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws_handler").Logger(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type hostJoinPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	HostID    string `json:"hostId" validate:"required"`
}

type participantJoinPayload struct {
	Code        string `json:"code" validate:"required,alphanum"`
	DisplayName string `json:"displayName" validate:"required"`
	UserID      string `json:"userId"`
}

type sessionPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
}

type answerPayload struct {
	ItemIndex *int   `json:"itemIndex" validate:"required,gte=0"`
	Answer    string `json:"answer" validate:"required"`
	ElapsedMs int64  `json:"elapsedMs" validate:"gte=0"`
}

type codePayload struct {
	ItemIndex *int   `json:"itemIndex" validate:"required,gte=0"`
	Code      string `json:"code" validate:"required"`
	Language  string `json:"language" validate:"required"`
}

type violationPayload struct {
	Type        string `json:"type" validate:"required"`
	Severity    string `json:"severity" validate:"required,oneof=low medium high critical"`
	Description string `json:"description" validate:"max=500"`
}

// ServeWS upgrades the request and runs the connection until the client
// goes away. Each connection gets its own engine context.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	conn := app.NewConn(uuid.NewString())
	cl := h.hub.register(conn.ID)
	metrics.ConnectionOpened()
	log := h.logger.With().Str("conn_id", conn.ID).Logger()
	log.Debug().Str("remote_addr", r.RemoteAddr).Msg("connection opened")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ws, cl.send, log)
	}()

	// The request context is cancelled once the handler returns; engine
	// calls outlive individual frames so they get their own.
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		h.engine.Disconnect(context.Background(), conn)
		h.hub.unregister(conn.ID)
		<-writerDone
		_ = ws.Close()
		metrics.ConnectionClosed()
		log.Debug().Msg("connection closed")
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inboundMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("ws read error")
			}
			return
		}
		if err := h.dispatch(ctx, conn, msg); err != nil {
			log.Debug().Err(err).Str("type", msg.Type).Msg("message rejected")
			h.hub.Send(conn.ID, app.ErrorEvent(err))
		}
	}
}

func (h *WSHandler) writePump(ws *websocket.Conn, send <-chan []byte, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				drain(send)
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				drain(send)
				return
			}
		}
	}
}

// drain discards queued events until the hub closes the channel.
func drain(send <-chan []byte) {
	for range send {
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *app.Conn, msg inboundMessage) error {
	switch msg.Type {
	case "ping":
		h.hub.Send(conn.ID, app.Event{Type: eventPong, Payload: map[string]int64{"ts": time.Now().UnixMilli()}})
		return nil
	case "host:join":
		var p hostJoinPayload
		if err := h.decode(msg.Payload, &p); err != nil {
			return err
		}
		return h.engine.HostJoin(ctx, conn, p.SessionID, p.HostID)
	case "participant:join":
		var p participantJoinPayload
		if err := h.decode(msg.Payload, &p); err != nil {
			return err
		}
		return h.engine.ParticipantJoin(ctx, conn, app.JoinRequest{Code: p.Code, DisplayName: p.DisplayName, UserID: p.UserID})
	case "session:start":
		var p sessionPayload
		if err := h.decode(msg.Payload, &p); err != nil {
			return err
		}
		return h.engine.Start(ctx, conn, p.SessionID)
	case "session:end":
		var p sessionPayload
		if err := h.decode(msg.Payload, &p); err != nil {
			return err
		}
		return h.engine.End(ctx, conn, p.SessionID)
	case "answer:submit":
		var p answerPayload
		if err := h.decode(msg.Payload, &p); err != nil {
			return err
		}
		return h.engine.Submit(ctx, conn, app.Attempt{ItemIndex: *p.ItemIndex, Answer: p.Answer, ElapsedMs: p.ElapsedMs})
	case "code:submit":
		var p codePayload
		if err := h.decode(msg.Payload, &p); err != nil {
			return err
		}
		return h.engine.Submit(ctx, conn, app.Attempt{ItemIndex: *p.ItemIndex, Code: p.Code, Language: p.Language})
	case "proctor:violation":
		var p violationPayload
		if err := h.decode(msg.Payload, &p); err != nil {
			return err
		}
		return h.engine.ReportViolation(ctx, conn, app.ViolationReport{
			Type:        p.Type,
			Severity:    domain.Severity(p.Severity),
			Description: p.Description,
		})
	default:
		return fmt.Errorf("%w: unsupported message type %q", domain.ErrInvalidPayload, msg.Type)
	}
}

func (h *WSHandler) decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return h.validator.Struct(dst)
}
