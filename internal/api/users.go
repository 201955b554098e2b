package api

import (
	"database/sql"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xbacnet/xbacnet/internal/api/middleware"
)

// userRecord mirrors tbl_users. Password hashes never leave the handler.
type userRecord struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	IsAdmin      bool   `json:"is_admin"`
	passwordHash string
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) listUsers(c *fiber.Ctx) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}

	rows, err := db.QueryContext(c.Context(),
		"SELECT id, username, email, is_admin FROM tbl_users ORDER BY id")
	if err != nil {
		return internalError(c, h.log, "users", err)
	}
	defer rows.Close()

	users := []userRecord{}
	for rows.Next() {
		var u userRecord
		var isAdmin int
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &isAdmin); err != nil {
			return internalError(c, h.log, "users", err)
		}
		u.IsAdmin = isAdmin != 0
		users = append(users, u)
	}
	return c.JSON(fiber.Map{"data": users, "total": len(users)})
}

func (h *Handler) getUser(c *fiber.Ctx) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid id")
	}

	var u userRecord
	var isAdmin int
	err = db.QueryRowContext(c.Context(),
		"SELECT id, username, email, is_admin FROM tbl_users WHERE id = ?", id).
		Scan(&u.ID, &u.Username, &u.Email, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(c, "user")
	}
	if err != nil {
		return internalError(c, h.log, "users", err)
	}
	u.IsAdmin = isAdmin != 0
	return c.JSON(u)
}

func (h *Handler) createUser(c *fiber.Ctx) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}

	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON in request body")
	}
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "username and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return internalError(c, h.log, "users", err)
	}

	isAdmin := 0
	if req.IsAdmin {
		isAdmin = 1
	}
	res, err := db.ExecContext(c.Context(),
		"INSERT INTO tbl_users (username, password_hash, email, is_admin) VALUES (?, ?, ?, ?)",
		req.Username, string(hash), req.Email, isAdmin)
	if err != nil {
		return badRequest(c, err.Error())
	}
	id, _ := res.LastInsertId()

	h.log.Info("user created", zap.String("username", req.Username), zap.Int64("id", id))
	return c.Status(fiber.StatusCreated).JSON(userRecord{
		ID: id, Username: req.Username, Email: req.Email, IsAdmin: req.IsAdmin,
	})
}

func (h *Handler) updateUser(c *fiber.Ctx) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid id")
	}

	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON in request body")
	}

	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return internalError(c, h.log, "users", err)
		}
		if _, err := db.ExecContext(c.Context(),
			"UPDATE tbl_users SET password_hash = ? WHERE id = ?", string(hash), id); err != nil {
			return internalError(c, h.log, "users", err)
		}
	}
	if req.Email != "" {
		if _, err := db.ExecContext(c.Context(),
			"UPDATE tbl_users SET email = ? WHERE id = ?", req.Email, id); err != nil {
			return internalError(c, h.log, "users", err)
		}
	}

	return h.getUser(c)
}

func (h *Handler) deleteUser(c *fiber.Ctx) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}
	id, err := c.ParamsInt("id")
	if err != nil {
		return badRequest(c, "invalid id")
	}

	res, err := db.ExecContext(c.Context(), "DELETE FROM tbl_users WHERE id = ?", id)
	if err != nil {
		return internalError(c, h.log, "users", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(c, "user")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) login(c *fiber.Ctx) error {
	db, err := h.db(c)
	if err != nil {
		return serviceUnavailable(c, err)
	}

	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON in request body")
	}

	var u userRecord
	var isAdmin int
	err = db.QueryRowContext(c.Context(),
		"SELECT id, username, password_hash, is_admin FROM tbl_users WHERE username = ?", req.Username).
		Scan(&u.ID, &u.Username, &u.passwordHash, &isAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return unauthorized(c)
	}
	if err != nil {
		return internalError(c, h.log, "login", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(req.Password)) != nil {
		h.log.Warn("failed login attempt", zap.String("username", req.Username), zap.String("ip", c.IP()))
		return unauthorized(c)
	}

	token, err := middleware.GenerateToken(h.jwtCfg, u.ID, u.Username, isAdmin != 0, uuid.NewString())
	if err != nil {
		return internalError(c, h.log, "login", err)
	}

	h.log.Info("user logged in", zap.String("username", u.Username))
	return c.JSON(fiber.Map{
		"token":    token,
		"user_id":  u.ID,
		"username": u.Username,
		"is_admin": isAdmin != 0,
	})
}

func (h *Handler) logout(c *fiber.Ctx) error {
	jti, _ := c.Locals("token_id").(string)
	expires, _ := c.Locals("token_expires").(time.Time)
	if jti == "" {
		return badRequest(c, "no token to revoke")
	}
	h.denylist.Revoke(jti, expires)
	return c.JSON(fiber.Map{"message": "logged out"})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid username or password"})
}
