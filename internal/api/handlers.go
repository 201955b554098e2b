package api

import (
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/xbacnet/xbacnet/internal/api/middleware"
	"github.com/xbacnet/xbacnet/internal/health"
	"github.com/xbacnet/xbacnet/internal/server"
	"github.com/xbacnet/xbacnet/internal/store"
)

// Handler serves the management REST API: CRUD over the nine object
// tables, users, health and stats. Mutations land in the database; the
// device runtime picks them up on its refresh cycle (non-output
// properties) or at the next restart (object add/remove).
type Handler struct {
	gw       *store.Gateway
	srv      *server.Server
	checker  *health.Checker
	jwtCfg   middleware.JWTConfig
	denylist *middleware.Denylist
	log      *zap.Logger
	started  time.Time
}

func NewHandler(gw *store.Gateway, srv *server.Server, checker *health.Checker, jwtCfg middleware.JWTConfig, log *zap.Logger) *Handler {
	return &Handler{
		gw:       gw,
		srv:      srv,
		checker:  checker,
		jwtCfg:   jwtCfg,
		denylist: middleware.NewDenylist(),
		log:      log,
		started:  time.Now(),
	}
}

// SetupRoutes registers everything under /api/v1. Login and health are
// reachable without a token.
func (h *Handler) SetupRoutes(app *fiber.App) {
	app.Use(middleware.JWTMiddleware(middleware.JWTConfig{
		SecretKey:  h.jwtCfg.SecretKey,
		Expiration: h.jwtCfg.Expiration,
		Issuer:     h.jwtCfg.Issuer,
		SkipPaths:  []string{"/api/v1/login", "/api/v1/health"},
	}, h.denylist))

	v1 := app.Group("/api/v1")

	for _, spec := range objectTables {
		h.registerObjectRoutes(v1, spec)
	}

	v1.Get("/users", h.listUsers)
	v1.Get("/users/:id", h.getUser)
	v1.Post("/users", h.createUser)
	v1.Put("/users/:id", h.updateUser)
	v1.Delete("/users/:id", h.deleteUser)

	v1.Post("/login", h.login)
	v1.Post("/logout", h.logout)

	v1.Get("/health", h.health)
	v1.Get("/stats", h.stats)
}

func (h *Handler) registerObjectRoutes(v1 fiber.Router, spec tableSpec) {
	v1.Get("/"+spec.Resource, func(c *fiber.Ctx) error {
		return h.listObjects(c, spec)
	})
	v1.Get("/"+spec.Resource+"/:id", func(c *fiber.Ctx) error {
		return h.getObject(c, spec)
	})
	v1.Post("/"+spec.Resource, func(c *fiber.Ctx) error {
		return h.createObject(c, spec)
	})
	v1.Put("/"+spec.Resource+"/:id", func(c *fiber.Ctx) error {
		return h.updateObject(c, spec)
	})
	v1.Delete("/"+spec.Resource+"/:id", func(c *fiber.Ctx) error {
		return h.deleteObject(c, spec)
	})
}

func (h *Handler) db(c *fiber.Ctx) (*sql.DB, error) {
	if err := h.gw.Ensure(c.Context()); err != nil {
		return nil, err
	}
	return h.gw.DB(), nil
}

func (h *Handler) listObjects(c *fiber.Ctx, spec tableSpec) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := c.QueryInt("page_size", defaultPageSize)
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rows, total, err := listRows(c.Context(), db, spec, page, pageSize)
	if err != nil {
		return internalError(c, h.log, spec.Resource, err)
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return c.JSON(fiber.Map{
		"data":      rows,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (h *Handler) getObject(c *fiber.Ctx, spec tableSpec) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid id")
	}

	row, err := getRow(c.Context(), db, spec, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(c, spec.Resource)
	}
	if err != nil {
		return internalError(c, h.log, spec.Resource, err)
	}
	return c.JSON(row)
}

func (h *Handler) createObject(c *fiber.Ctx, spec tableSpec) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}

	var data map[string]interface{}
	if err := c.BodyParser(&data); err != nil {
		return badRequest(c, "invalid JSON in request body")
	}

	id, err := insertRow(c.Context(), db, spec, data)
	if err != nil {
		return badRequest(c, err.Error())
	}

	row, err := getRow(c.Context(), db, spec, id)
	if err != nil {
		return internalError(c, h.log, spec.Resource, err)
	}
	h.log.Info("object created", zap.String("resource", spec.Resource), zap.Int64("id", id))
	return c.Status(fiber.StatusCreated).JSON(row)
}

func (h *Handler) updateObject(c *fiber.Ctx, spec tableSpec) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid id")
	}

	var data map[string]interface{}
	if err := c.BodyParser(&data); err != nil {
		return badRequest(c, "invalid JSON in request body")
	}

	if err := updateRow(c.Context(), db, spec, int64(id), data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(c, spec.Resource)
		}
		return badRequest(c, err.Error())
	}

	row, err := getRow(c.Context(), db, spec, int64(id))
	if err != nil {
		return internalError(c, h.log, spec.Resource, err)
	}
	return c.JSON(row)
}

func (h *Handler) deleteObject(c *fiber.Ctx, spec tableSpec) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid id")
	}

	if err := deleteRow(c.Context(), db, spec, int64(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound(c, spec.Resource)
		}
		return internalError(c, h.log, spec.Resource, err)
	}
	h.log.Info("object deleted", zap.String("resource", spec.Resource), zap.Int("id", id))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) health(c *fiber.Ctx) error {
	checks := h.checker.Run(c.Context())
	status := h.checker.Overall()

	// Degraded stays 200: a database outage is not fatal for the device.
	code := fiber.StatusOK
	if status == health.StatusUnhealthy {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
		"uptime": time.Since(h.started).String(),
	})
}

func (h *Handler) stats(c *fiber.Ctx) error {
	counts := make(map[string]interface{}, len(objectTables))

	db, err := h.db(c)
	if err == nil {
		for _, spec := range objectTables {
			var n int
			if qerr := db.QueryRowContext(c.Context(), "SELECT COUNT(*) FROM "+spec.Table).Scan(&n); qerr == nil {
				counts[spec.Resource] = n
			}
		}
	}

	return c.JSON(fiber.Map{
		"object_counts":     counts,
		"live_objects":      h.srv.Registry().Len(),
		"cov_subscriptions": h.srv.SubscriptionCount(),
		"uptime":            time.Since(h.started).String(),
	})
}

// --- error helpers ---

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, resource string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": resource + " not found"})
}

func serviceUnavailable(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "database unavailable: " + err.Error()})
}

func internalError(c *fiber.Ctx, log *zap.Logger, resource string, err error) error {
	log.Error("api request failed", zap.String("resource", resource), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
}
