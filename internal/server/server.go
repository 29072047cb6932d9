package server

import (
	"backend-opentransit/internal/config"
	"backend-opentransit/internal/line"
	"backend-opentransit/internal/recording"
	"backend-opentransit/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	// Clients are native mobile apps and WebViews; any origin may call.
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": "open-transit"})
	})
	s.App.Get("/health", func(c *fiber.Ctx) error {
		database := "unconfigured"
		if s.DB != nil {
			database = "connected"
			if err := s.DB.Ping(c.Context()); err != nil {
				database = "unreachable"
			}
		}
		return c.JSON(fiber.Map{"status": "ok", "database": database})
	})

	line.RegisterRoutes(s.App.Group("/lines"), line.NewService(s.DB))
	recording.RegisterRoutes(s.App.Group("/recordings"), recording.NewService(s.DB, s.Stream), s.Cfg.SweepInactiveMinutes)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
