package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/config"
	"github.com/fathima-sithara/realtime-service/internal/handler"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

type Server struct {
	cfg        *config.Config
	hub        *ws.Hub
	dispatcher *handler.Dispatcher
	chats      *service.ChatService
	presence   *presence.Store
	validator  *auth.Validator
	log        *zap.SugaredLogger
}

func NewServer(
	cfg *config.Config,
	hub *ws.Hub,
	dispatcher *handler.Dispatcher,
	chats *service.ChatService,
	pres *presence.Store,
	validator *auth.Validator,
	log *zap.SugaredLogger,
) *fiber.App {
	s := &Server{
		cfg:        cfg,
		hub:        hub,
		dispatcher: dispatcher,
		chats:      chats,
		presence:   pres,
		validator:  validator,
		log:        log,
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	app.Get("/rooms/:id/messages", s.handleHistory)
	app.Get("/presence/:user_id", s.handlePresence)

	return app
}

// handleWS authenticates the handshake and runs the connection's pumps. An
// unauthenticated connection is closed before any registration happens.
func (s *Server) handleWS(conn *websocket.Conn) {
	token := conn.Query("token")
	if token == "" {
		_ = conn.Close()
		return
	}
	user, err := s.validator.Validate(token)
	if err != nil {
		_ = conn.Close()
		return
	}

	client := ws.NewClient(conn, user, ws.Options{
		PingInterval:  s.cfg.PingInterval,
		WriteDeadline: s.cfg.WriteDeadline,
		PongWait:      s.cfg.PongWait,
		ReadLimit:     s.cfg.WS.MaxMessageSizeBytes,
		RatePerSec:    s.cfg.WS.RateLimitPerSec,
	}, s.log)

	s.hub.Register(client)
	if s.presence != nil {
		_ = s.presence.SetOnline(context.Background(), user.ID)
	}
	defer func() {
		s.hub.Unregister(client)
		if s.presence != nil {
			_ = s.presence.SetOffline(context.Background(), user.ID)
		}
		client.Close()
	}()

	go client.WritePump()
	client.ReadPump(s.dispatcher.Handle)
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	tokenStr, err := auth.ParseBearerToken(c.Get("Authorization"))
	if err != nil {
		return fiber.ErrUnauthorized
	}
	if _, err := s.validator.Validate(tokenStr); err != nil {
		return fiber.ErrUnauthorized
	}

	roomID := c.Params("id")
	limit, _ := strconv.ParseInt(c.Query("limit", "50"), 10, 64)
	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fiber.ErrBadRequest
		}
		before = t
	}

	msgs, err := s.chats.History(c.Context(), roomID, limit, before)
	if err != nil {
		s.log.Errorw("history", "room", roomID, "err", err)
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"room_id": roomID, "messages": msgs})
}

func (s *Server) handlePresence(c *fiber.Ctx) error {
	uid := c.Params("user_id")
	online := s.hub.IsOnline(uid)
	resp := fiber.Map{"user_id": uid, "online": online}
	if s.presence != nil {
		if st, err := s.presence.Get(c.Context(), uid); err == nil {
			resp["status"] = st.Status
			resp["last_seen"] = st.LastSeen
		}
	}
	return c.JSON(resp)
}
