package auth

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"geoform-backend/internal/apperr"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("password stored in plaintext")
	}
	if !CheckPassword("s3cret", hash) {
		t.Error("correct password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("wrong password accepted")
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := GenerateAccessToken("user-42", "secret")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := ParseAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "user-42" {
		t.Errorf("subject = %q, want user-42", claims.Subject)
	}

	if _, err := ParseAccessToken(token, "other-secret"); err == nil {
		t.Error("token signed with a different secret accepted")
	}
	if _, err := ParseAccessToken("not-a-token", "secret"); err == nil {
		t.Error("garbage token accepted")
	}
}

func newProtectedApp(secret string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(apperr.ErrorResponse{Error: appErr})
		}
		return c.Status(500).JSON(apperr.ErrorResponse{
			Error: &apperr.AppError{Code: "INTERNAL_ERROR", Message: err.Error()},
		})
	}})
	app.Get("/me", Middleware(secret), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": UserID(c)})
	})
	return app
}

func TestMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	app := newProtectedApp("secret")

	cases := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"invalid token", "Bearer nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", resp.StatusCode)
			}
		})
	}
}

func TestMiddleware_AcceptsValidToken(t *testing.T) {
	app := newProtectedApp("secret")

	token, err := GenerateAccessToken("user-42", "secret")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	req, _ := http.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
