package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"geoform-backend/internal/apperr"
	"geoform-backend/internal/store"
)

// Handler serves the authentication endpoints for the admin interface.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return apperr.Unauthorized("Email and password are required")
	}

	ctx := c.Context()
	user, err := h.findUserByEmail(ctx, body.Email)
	if err != nil {
		return apperr.Unauthorized("Invalid email or password")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return apperr.Unauthorized("Invalid email or password")
	}

	userID := fmt.Sprintf("%v", user["id"])
	pair, err := h.generateTokenPair(ctx, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /auth/refresh. The presented refresh token is
// rotated: deleted and replaced by a fresh pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if body.RefreshToken == "" {
		return apperr.Unauthorized("Refresh token is required")
	}

	ctx := c.Context()
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB, fmt.Sprintf(
		"SELECT id, user_id, expires_at FROM _refresh_tokens WHERE token = %s",
		pb.Add(body.RefreshToken)), pb.Params()...)
	if err != nil {
		return apperr.Unauthorized("Invalid refresh token")
	}

	expired := true
	switch v := row["expires_at"].(type) {
	case time.Time:
		expired = time.Now().After(v)
	case string:
		// SQLite hands timestamps back as text
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			expired = time.Now().After(t)
		} else if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
			expired = time.Now().After(t)
		}
	}
	if expired {
		h.deleteToken(ctx, body.RefreshToken)
		return apperr.Unauthorized("Refresh token expired")
	}

	h.deleteToken(ctx, body.RefreshToken)

	userID := fmt.Sprintf("%v", row["user_id"])
	pair, err := h.generateTokenPair(ctx, userID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if body.RefreshToken == "" {
		return apperr.Unauthorized("Refresh token is required")
	}
	h.deleteToken(c.Context(), body.RefreshToken)
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// EnsureUser creates the user if no account with that email exists yet.
func EnsureUser(ctx context.Context, s *store.Store, email, password string) error {
	pb := s.Dialect.NewParamBuilder()
	_, err := store.QueryRow(ctx, s.DB, fmt.Sprintf(
		"SELECT id FROM _users WHERE email = %s", pb.Add(email)), pb.Params()...)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup user %s: %w", email, err)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	pb = s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("INSERT INTO _users (id, email, password_hash) VALUES (%s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add(email), pb.Add(hash))
	if _, err := store.Exec(ctx, s.DB, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("create user %s: %w", email, err)
	}
	return nil
}

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(ctx, h.store.DB, fmt.Sprintf(
		"SELECT id, email, password_hash FROM _users WHERE email = %s",
		pb.Add(email)), pb.Params()...)
}

func (h *Handler) deleteToken(ctx context.Context, token string) {
	pb := h.store.Dialect.NewParamBuilder()
	_, _ = store.Exec(ctx, h.store.DB, fmt.Sprintf(
		"DELETE FROM _refresh_tokens WHERE token = %s", pb.Add(token)), pb.Params()...)
}

func (h *Handler) generateTokenPair(ctx context.Context, userID string) (*TokenPair, error) {
	accessToken, err := GenerateAccessToken(userID, h.jwtSecret)
	if err != nil {
		return nil, apperr.New("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	// bound as formatted text so both drivers store a parsable timestamp
	expiresAt := time.Now().Add(RefreshTokenTTL).UTC().Format(time.RFC3339Nano)

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _refresh_tokens (id, user_id, token, expires_at) VALUES (%s, %s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add(userID), pb.Add(refreshToken), pb.Add(expiresAt))
	if _, err := store.Exec(ctx, h.store.DB, sqlStr, pb.Params()...); err != nil {
		return nil, apperr.New("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
