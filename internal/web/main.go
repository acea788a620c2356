// Package web exposes a local JSON admin surface over the settings
// store: reads, updates, import/export, reset, save status, health, and
// prometheus metrics.
package web

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/prefstore/prefstore/internal/store"
)

// Service represents the admin web service.
type Service struct {
	App   *fiber.App
	store *store.Store
}

// New creates the service and registers its routes.
func New(st *store.Store) *Service {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	s := &Service{App: app, store: st}

	app.Get("/healthz", s.healthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/settings")
	api.Get("/", s.getAll)
	api.Get("/export", s.export)
	api.Get("/status", s.status)
	api.Post("/import", s.importSettings)
	api.Post("/reset", s.reset)
	api.Post("/save", s.save)
	api.Get("/:key", s.getOne)
	api.Put("/:key", s.update)

	return s
}

// Start starts the web service on the given address and blocks until it
// stops.
func (s *Service) Start(addr string) error {
	if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown stops the web service gracefully.
func (s *Service) Shutdown() error {
	return s.App.Shutdown()
}

func (s *Service) healthz(c *fiber.Ctx) error {
	return c.SendString("ok")
}

func (s *Service) getAll(c *fiber.Ctx) error {
	records, err := s.store.GetAllSettings(c.Context())
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(records)
}

func (s *Service) getOne(c *fiber.Ctx) error {
	rec, err := s.store.GetSetting(c.Context(), c.Params("key"))
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(rec)
}

type updateRequest struct {
	Value any `json:"value"`
}

func (s *Service) update(c *fiber.Ctx) error {
	var req updateRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	key := c.Params("key")

	if err := s.store.UpdateSetting(c.Context(), key, req.Value); err != nil {
		return sendError(c, err)
	}

	rec, err := s.store.GetSetting(c.Context(), key)
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(rec)
}

func (s *Service) export(c *fiber.Ctx) error {
	doc, err := s.store.ExportSettings(c.Context())
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(doc)
}

func (s *Service) importSettings(c *fiber.Ctx) error {
	result, err := s.store.ImportSettings(c.Context(), c.Body())
	if err != nil {
		log.Warn().Err(err).Msg("settings import failed")

		return sendError(c, err)
	}

	return c.JSON(result)
}

func (s *Service) reset(c *fiber.Ctx) error {
	if err := s.store.ResetToDefaults(c.Context()); err != nil {
		return sendError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) save(c *fiber.Ctx) error {
	if err := s.store.ForceSave(c.Context(), nil); err != nil {
		return sendError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Service) status(c *fiber.Ctx) error {
	st := s.store.GetSaveStatus()

	out := fiber.Map{
		"state":        st.State,
		"pendingCount": st.PendingCount,
		"timestamp":    st.Timestamp,
	}

	if st.LastError != nil {
		out["lastError"] = st.LastError.Error()
	}

	return c.JSON(out)
}

func sendError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidValue),
		errors.Is(err, store.ErrInvalidImport),
		errors.Is(err, store.ErrNothingImported):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		log.Error().Err(err).Msg("settings request failed")

		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
}
