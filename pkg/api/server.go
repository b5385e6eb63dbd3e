package api

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fio-analyzer/server/pkg/api/handlers"
	"github.com/fio-analyzer/server/pkg/api/middleware"
	"github.com/fio-analyzer/server/pkg/auth"
	"github.com/fio-analyzer/server/pkg/notifications"
	"github.com/fio-analyzer/server/pkg/store"
)

// Server owns the HTTP surface: the Fiber app, the run store, the user
// registry, and the live-event hub.
type Server struct {
	cfg   Config
	app   *fiber.App
	store *store.Store
	users *auth.Service
	hub   *handlers.Hub
}

// NewServer opens the store, starts the hub, and mounts every route.
func NewServer(cfg Config) (*Server, error) {
	st, err := store.Open(cfg.DatabasePath, store.Options{SeedSampleData: cfg.SeedSampleData})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	users := auth.NewService(cfg.AdminUserFile, cfg.UploaderUserFile)
	if err := users.Watch(); err != nil {
		log.Printf("[Server] User file watching unavailable: %v", err)
	}

	hub := handlers.NewHub()
	go hub.Run()

	if cfg.SlackWebhookURL != "" {
		notifier := notifications.NewSlackNotifier(cfg.SlackWebhookURL, cfg.SlackChannel)
		events, _ := hub.Subscribe()
		go notifier.Forward(events)
		log.Printf("[Server] Slack notifications enabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      "FIO Analyzer API",
		BodyLimit:    int(cfg.MaxUploadSize),
		ErrorHandler: errorHandler,
	})

	s := &Server{cfg: cfg, app: app, store: st, users: users, hub: hub}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// errorHandler renders every handler error as the JSON error envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}
	return c.Status(code).JSON(fiber.Map{
		"error":      message,
		"request_id": middleware.GetRequestID(c),
	})
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: s.cfg.CORSOrigins,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Metrics())
}

func (s *Server) setupRoutes() {
	authn := middleware.NewAuthenticator(s.users, s.cfg.JWTSecret, time.Duration(s.cfg.TokenTTL))

	info := handlers.NewInfoHandlers()
	tokens := handlers.NewAuthHandlers(authn)
	accounts := handlers.NewUserHandlers(s.users)
	runs := handlers.NewTestRunHandlers(s.store, s.hub)
	imports := handlers.NewImportHandlers(s.store, s.hub, s.cfg.UploadDir, s.cfg.MaxUploadSize)
	series := handlers.NewTimeSeriesHandlers(s.store)
	filters := handlers.NewFilterHandlers(s.store)
	grids := handlers.NewGridHandlers(s.store)
	system := handlers.NewSystemHandlers(s.store, s.cfg.DatabasePath, s.cfg.UploadDir)
	events := handlers.NewEventHandlers(s.hub)

	s.app.Get("/health", info.Health)
	s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := s.app.Group("/api")
	api.Get("/info", info.Info)
	api.Post("/auth/token", authn.RequireAuth(), tokens.Token)

	users := api.Group("/users")
	users.Get("/", authn.RequireAdmin(), accounts.List)
	users.Get("/me", authn.RequireAuth(), accounts.Me)
	users.Post("/", authn.RequireAdmin(), accounts.Create)
	users.Get("/:username", authn.RequireAdmin(), accounts.Get)
	users.Put("/:username", authn.RequireAdmin(), accounts.Update)
	users.Delete("/:username", authn.RequireAdmin(), accounts.Delete)

	api.Get("/test-runs", authn.RequireAuth(), runs.List)
	api.Get("/test-runs/performance-data", authn.RequireAuth(), runs.PerformanceData)
	api.Put("/test-runs/bulk", authn.RequireAdmin(), runs.BulkUpdate)
	api.Get("/test-runs/:id", authn.RequireAuth(), runs.Get)
	api.Delete("/test-runs/:id", authn.RequireAdmin(), runs.Delete)

	api.Post("/import", authn.RequireUploader(), imports.Import)
	api.Post("/import/bulk", authn.RequireAdmin(), imports.BulkImport)

	ts := api.Group("/time-series", authn.RequireAuth())
	ts.Get("/servers", series.Servers)
	ts.Get("/latest", series.Latest)
	ts.Get("/history", series.History)
	ts.Get("/trends", series.Trends)

	api.Get("/filters", authn.RequireAuth(), filters.Options)

	grid := api.Group("/grid", authn.RequireAuth())
	grid.Get("/heatmap", grids.Heatmap)
	grid.Get("/matrix", grids.Matrix)
	grid.Get("/stacked", grids.Stacked)
	grid.Get("/export.xlsx", grids.Export)

	api.Get("/admin/system", authn.RequireAdmin(), system.System)

	api.Get("/events/stream", authn.RequireAuth(), events.Stream)
	s.app.Get("/ws/events", authn.RequireAuth(), middleware.WebSocketUpgrade(), events.WebSocket())
}

// Start begins serving on the configured address and blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	log.Printf("[Server] FIO Analyzer API listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the listener and releases the hub, user watcher, and
// store.
func (s *Server) Shutdown() error {
	err := s.app.Shutdown()
	s.hub.Close()
	if cerr := s.users.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := s.store.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// App exposes the Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
