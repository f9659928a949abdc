package http

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"
)

type staticSource []SubscriptionStatus

func (s staticSource) Subscriptions() []SubscriptionStatus { return s }

func TestHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/health", Health)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/health", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"UP"}`, string(body))
}

func TestSubscriptionsAndReady(t *testing.T) {
	tests := []struct {
		name      string
		src       staticSource
		wantReady int
	}{
		{
			name:      "all active",
			src:       staticSource{{Node: "a", State: "active", SubscriptionID: "x"}, {Node: "b", State: "active"}},
			wantReady: fiber.StatusOK,
		},
		{
			name:      "one recovering",
			src:       staticSource{{Node: "a", State: "active"}, {Node: "b", State: "recovering"}},
			wantReady: fiber.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/subscriptions", Subscriptions(tt.src))
			app.Get("/ready", Ready(tt.src, "active"))

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/subscriptions", nil))
			require.NoError(t, err)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var got []SubscriptionStatus
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			require.Equal(t, []SubscriptionStatus(tt.src), got)

			resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/ready", nil))
			require.NoError(t, err)
			require.Equal(t, tt.wantReady, resp.StatusCode)
		})
	}
}
