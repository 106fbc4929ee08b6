// Package web exposes the response pipeline over HTTP and websocket. It is a
// thin adapter: request parsing and JSON shaping only, no pipeline logic.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/pippinlabs/go-pippin/pkg/hub"
	"github.com/pippinlabs/go-pippin/pkg/pipeline"
)

// Server is the pipeline's HTTP surface.
type Server struct {
	app    *fiber.App
	port   string
	coord  *pipeline.Coordinator
	events *hub.Hub
	logger *slog.Logger
}

// NewServer creates a server over the given coordinator. events may be the
// same hub the coordinator publishes to; pass nil to disable the event socket.
func NewServer(port string, coord *pipeline.Coordinator, events *hub.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:   port,
		coord:  coord,
		events: events,
		logger: logger.With("component", "web.server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Pippin Pipeline",
		DisableStartupMessage: true,
		BodyLimit:             8 * 1024 * 1024, // utterance audio
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Post("/sessions/:id/utterance", s.handleUtterance)
	api.Post("/sessions/:id/interrupt", s.handleInterrupt)
	api.Delete("/sessions/:id", s.handleEndSession)
	api.Get("/metrics", s.handleMetrics)
	api.Get("/healthz", s.handleHealth)

	if s.events != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/events", websocket.New(s.handleEventsWS))
	}

	s.app = app
	return s
}

// Start runs the server, blocking until shutdown.
func (s *Server) Start() error {
	if s.events != nil {
		go s.events.Run()
	}
	s.logger.Info("listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	if s.events != nil {
		s.events.Stop()
	}
	return s.app.Shutdown()
}

// handleEventsWS streams pipeline events to one observer.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	hub.NewClient(s.events, c).Run()
}
