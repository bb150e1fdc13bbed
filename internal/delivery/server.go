package delivery

import (
	"log"

	"github.com/git-krishnabisht/vaatsip-sub000/internal/auth"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/config"
	redisinfra "github.com/git-krishnabisht/vaatsip-sub000/internal/infrastructure/redis"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/registry"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/relay"
	"github.com/git-krishnabisht/vaatsip-sub000/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

type Server struct {
	config     *config.Config
	verifier   *auth.Verifier
	store      *store.Store
	reg        *registry.Registry
	redis      *redisinfra.RedisClient
	supervisor *Supervisor
}

func NewServer(cfg *config.Config, verifier *auth.Verifier, st *store.Store, reg *registry.Registry, rel *relay.Relay, redis *redisinfra.RedisClient) *Server {
	return &Server{
		config:     cfg,
		verifier:   verifier,
		store:      st,
		reg:        reg,
		redis:      redis,
		supervisor: NewSupervisor(cfg, reg, rel, redis),
	}
}

// App builds the fiber application; split from Start so tests can attach
// their own listener.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Vaatsip Realtime Server",
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} ${latency}\n",
	}))

	corsConfig := cors.Config{
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Requested-With,Access-Control-Request-Method,Access-Control-Request-Headers",
		ExposeHeaders:    "Content-Length,Access-Control-Allow-Origin,Access-Control-Allow-Headers,Content-Type",
		AllowCredentials: s.config.AllowCredentials,
		MaxAge:           86400, // 24 hours
	}

	if s.config.IsProduction() {
		corsConfig.AllowOrigins = s.config.GetCORSOrigins()
		log.Printf("CORS configured for production with origins: %s", corsConfig.AllowOrigins)
	} else {
		corsConfig.AllowOrigins = "*"
		corsConfig.AllowCredentials = false // Never allow credentials with wildcard origin
		log.Printf("CORS configured for development with wildcard origin")
	}

	app.Use(cors.New(corsConfig))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"message":     "Vaatsip realtime server is running",
			"port":        s.config.Port,
			"environment": s.config.Environment,
		})
	})

	// REST API routes
	api := app.Group("/api")
	api.Get("/presence/online-users", s.handleGetOnlineUsers)
	api.Get("/presence/:user_id", s.handleGetPresence)
	api.Get("/messages/:user_id", s.requireAuth, s.handleGetMessages)

	// WebSocket middleware: reject non-upgrade requests and unverifiable
	// credentials before any frame is exchanged.
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		ident, err := s.verifier.Verify(tokenFromCtx(c))
		if err != nil {
			log.Printf("WebSocket auth rejected: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "authentication rejected",
			})
		}
		c.Locals("identity", ident)
		return c.Next()
	})

	// WebSocket route
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		ident := c.Locals("identity").(*auth.Identity)
		s.supervisor.HandleConnection(c, ident)
	}))

	return app
}

func (s *Server) Start() error {
	app := s.App()
	log.Printf("Vaatsip realtime server (WebSocket + REST) starting on port %s", s.config.Port)
	return app.Listen(":" + s.config.Port)
}
