package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"outreachly/config"
	"outreachly/models"
	"outreachly/testutil"
	"outreachly/utils"
)

func TestProtected(t *testing.T) {
	config.AppConfig.JWTSecret = "middleware-test-secret"
	db := testutil.NewDB(t)
	active := testutil.CreateUser(t, db, "active@acme.test", models.PlanFree)
	inactive := testutil.CreateUser(t, db, "inactive@acme.test", models.PlanFree)
	db.Model(inactive).Update("is_active", false)

	app := fiber.New()
	app.Get("/me", Protected(db), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": CurrentUser(c).ID})
	})

	tokenFor := func(id uint) string {
		token, err := utils.GenerateAccessToken(id, time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		return token
	}

	tests := []struct {
		name   string
		header string
		cookie string
		want   int
	}{
		{"bearer", "Bearer " + tokenFor(active.ID), "", http.StatusOK},
		{"cookie", "", tokenFor(active.ID), http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"bad scheme", "Token " + tokenFor(active.ID), "", http.StatusUnauthorized},
		{"garbage", "Bearer not.a.jwt", "", http.StatusUnauthorized},
		{"unknown user", "Bearer " + tokenFor(9999), "", http.StatusUnauthorized},
		{"inactive", "Bearer " + tokenFor(inactive.ID), "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{
		AllowedOrigins: []string{"https://app.outreachly.test"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         600,
	}))
	app.Get("/x", func(c *fiber.Ctx) error { return c.SendString("ok") })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.outreachly.test")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.outreachly.test" {
		t.Fatalf("allow origin = %q", got)
	}
	if got := resp.Header.Get("Access-Control-Max-Age"); got != "600" {
		t.Fatalf("max age = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("disallowed origin got %q", got)
	}
}

func TestJobStartLimiter(t *testing.T) {
	app := fiber.New()
	app.Post("/start", func(c *fiber.Ctx) error {
		user := &models.User{}
		user.ID = 7
		c.Locals("user", user)
		return c.Next()
	}, JobStartLimiter(2, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/start", nil))
		if err != nil {
			t.Fatal(err)
		}
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusAccepted || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}
