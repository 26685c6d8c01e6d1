package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
)

type stubDependency struct {
	enabled bool
	err     error
}

func (s stubDependency) Ping(context.Context) error { return s.err }
func (s stubDependency) Enabled() bool              { return s.enabled }

func newTestApp(t *testing.T, deps map[string]handlers.Dependency) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	users := repository.NewMemoryUserRepository()
	tickets := repository.NewMemoryTicketRepository()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: bcrypt.MinCost}}

	authService := service.NewAuthService(cfg, users, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: tickets,
		UserRepo:   users,
		Dispatcher: events.NewInMemoryDispatcher(),
		Logger:     logger,
	})
	metrics := observability.NewMetrics()

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("support-desk", "test", deps, metrics),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users),
	})
	return app
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

type account struct {
	ID    string
	Token string
}

func register(t *testing.T, app *fiber.App, name, email, role string) account {
	t.Helper()
	status, env := call(t, app, "POST", "/auth/register", "", map[string]any{
		"name": name, "email": email, "password": "long-enough", "role": role,
	})
	require.Equal(t, fiber.StatusCreated, status)
	var data struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return account{ID: data.User.ID, Token: data.Auth.Token}
}

type ticketBody struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	AssignedAgent struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"assigned_agent"`
	ReassignmentCount   int `json:"reassignment_count"`
	ReassignmentHistory []struct {
		FromAgent struct {
			Name string `json:"name"`
		} `json:"from_agent"`
		ToAgent struct {
			Name string `json:"name"`
		} `json:"to_agent"`
	} `json:"reassignment_history"`
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t, nil)
	carol := register(t, app, "Carol", "carol@example.com", "customer")
	alice := register(t, app, "Alice", "alice@example.com", "AGENT")

	status, env := call(t, app, "POST", "/tickets", carol.Token, map[string]any{"issue_details": "printer broken"})
	require.Equal(t, fiber.StatusCreated, status)
	var ticket ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "OPEN", ticket.Status)
	assert.Equal(t, alice.ID, ticket.AssignedAgent.ID)

	status, env = call(t, app, "PATCH", "/tickets/"+ticket.ID+"/status", alice.Token, map[string]any{"status": "in_progress"})
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, "IN_PROGRESS", ticket.Status)

	bob := register(t, app, "Bob", "bob@example.com", "AGENT")
	dave := register(t, app, "Dave", "dave@example.com", "AGENT")

	status, env = call(t, app, "POST", "/tickets/"+ticket.ID+"/reassign", alice.Token, map[string]any{"new_agent_id": bob.ID})
	require.Equal(t, fiber.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	assert.Equal(t, 1, ticket.ReassignmentCount)
	require.Len(t, ticket.ReassignmentHistory, 1)
	assert.Equal(t, "Alice", ticket.ReassignmentHistory[0].FromAgent.Name)
	assert.Equal(t, "Bob", ticket.ReassignmentHistory[0].ToAgent.Name)

	status, env = call(t, app, "POST", "/tickets/"+ticket.ID+"/reassign", bob.Token, map[string]any{"new_agent_id": dave.ID})
	assert.Equal(t, fiber.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "REASSIGNMENT_LIMIT_EXCEEDED", env.Error.Code)

	status, env = call(t, app, "GET", "/tickets", bob.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var list []ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, ticket.ID, list[0].ID)

	status, _ = call(t, app, "GET", "/tickets/"+ticket.ID, alice.Token, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = call(t, app, "GET", "/tickets/"+ticket.ID, carol.Token, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestErrorMapping(t *testing.T) {
	app := newTestApp(t, nil)
	carol := register(t, app, "Carol", "carol@example.com", "CUSTOMER")

	status, env := call(t, app, "POST", "/tickets", carol.Token, map[string]any{"issue_details": "help"})
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NO_AGENTS_AVAILABLE", env.Error.Code)

	alice := register(t, app, "Alice", "alice@example.com", "AGENT")

	status, env = call(t, app, "POST", "/tickets", carol.Token, map[string]any{"issue_details": "   "})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = call(t, app, "POST", "/tickets", alice.Token, map[string]any{"issue_details": "help"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = call(t, app, "GET", "/tickets", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = call(t, app, "GET", "/no-such-route", "", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestReassignTargetErrors(t *testing.T) {
	app := newTestApp(t, nil)
	carol := register(t, app, "Carol", "carol@example.com", "CUSTOMER")
	alice := register(t, app, "Alice", "alice@example.com", "AGENT")

	_, env := call(t, app, "POST", "/tickets", carol.Token, map[string]any{"issue_details": "printer broken"})
	var ticket ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &ticket))

	status, env := call(t, app, "POST", "/tickets/"+ticket.ID+"/reassign", alice.Token, map[string]any{"new_agent_id": alice.ID})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "SELF_REASSIGNMENT", env.Error.Code)

	status, env = call(t, app, "POST", "/tickets/"+ticket.ID+"/reassign", alice.Token, map[string]any{"new_agent_id": carol.ID})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "INVALID_AGENT", env.Error.Code)

	status, env = call(t, app, "POST", "/tickets/"+ticket.ID+"/reassign", alice.Token, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	bob := register(t, app, "Bob", "bob@example.com", "AGENT")
	status, _ = call(t, app, "POST", "/tickets/"+ticket.ID+"/reassign", alice.Token, map[string]any{"new_agent_id": bob.ID})
	require.Equal(t, fiber.StatusOK, status)

	status, env = call(t, app, "POST", "/tickets/"+ticket.ID+"/reassign", bob.Token, map[string]any{"new_agent_id": bob.ID})
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "SELF_REASSIGNMENT", env.Error.Code)
}

func TestUpdateStatusLookupPrecedesValidation(t *testing.T) {
	app := newTestApp(t, nil)
	carol := register(t, app, "Carol", "carol@example.com", "CUSTOMER")
	alice := register(t, app, "Alice", "alice@example.com", "AGENT")

	_, env := call(t, app, "POST", "/tickets", carol.Token, map[string]any{"issue_details": "printer broken"})
	var ticket ticketBody
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	bob := register(t, app, "Bob", "bob@example.com", "AGENT")

	for _, body := range []map[string]any{{"status": ""}, {}, {"status": "DONE"}} {
		status, env := call(t, app, "PATCH", "/tickets/"+ticket.ID+"/status", bob.Token, body)
		assert.Equal(t, fiber.StatusNotFound, status, "body %v", body)
		assert.Equal(t, "NOT_FOUND", env.Error.Code)

		status, env = call(t, app, "PATCH", "/tickets/"+ticket.ID+"/status", alice.Token, body)
		assert.Equal(t, fiber.StatusBadRequest, status, "body %v", body)
		assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	}
}

func TestAgentsEndpoint(t *testing.T) {
	app := newTestApp(t, nil)
	carol := register(t, app, "Carol", "carol@example.com", "CUSTOMER")
	alice := register(t, app, "Alice", "alice@example.com", "AGENT")
	register(t, app, "Bob", "bob@example.com", "AGENT")

	status, env := call(t, app, "GET", "/agents", alice.Token, nil)
	require.Equal(t, fiber.StatusOK, status)
	var agents []struct {
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &agents))
	require.Len(t, agents, 1)
	assert.Equal(t, "Bob", agents[0].Name)

	status, _ = call(t, app, "GET", "/agents", carol.Token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestAuthEndpoints(t *testing.T) {
	app := newTestApp(t, nil)
	carol := register(t, app, "Carol", "carol@example.com", "CUSTOMER")

	status, env := call(t, app, "POST", "/auth/register", "", map[string]any{
		"name": "Carol", "email": "carol@example.com", "password": "long-enough", "role": "CUSTOMER",
	})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = call(t, app, "POST", "/auth/register", "", map[string]any{
		"name": "Eve", "email": "eve@example.com", "password": "long-enough", "role": "CUSTOMER", "age": 42,
	})
	require.Equal(t, fiber.StatusCreated, status)
	var eve struct {
		User struct {
			Age *int `json:"age"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &eve))
	require.NotNil(t, eve.User.Age)
	assert.Equal(t, 42, *eve.User.Age)

	status, env = call(t, app, "POST", "/auth/register", "", map[string]any{
		"name": "Old", "email": "old@example.com", "password": "long-enough", "role": "CUSTOMER", "age": 151,
	})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "out of range", env.Error.Details["age"])

	status, _ = call(t, app, "POST", "/auth/login", "", map[string]any{"email": "carol@example.com", "password": "long-enough"})
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = call(t, app, "POST", "/auth/password/change", carol.Token, map[string]any{
		"current_password": "long-enough", "new_password": "even-longer",
	})
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = call(t, app, "POST", "/auth/login", "", map[string]any{"email": "carol@example.com", "password": "long-enough"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestHealthEndpoints(t *testing.T) {
	t.Run("disabled dependencies do not fail readiness", func(t *testing.T) {
		app := newTestApp(t, map[string]handlers.Dependency{
			"postgres": stubDependency{},
			"redis":    stubDependency{enabled: true},
		})
		status, _ := call(t, app, "GET", "/health/live", "", nil)
		assert.Equal(t, fiber.StatusOK, status)
		status, _ = call(t, app, "GET", "/health/ready", "", nil)
		assert.Equal(t, fiber.StatusOK, status)
	})

	t.Run("failing dependency", func(t *testing.T) {
		app := newTestApp(t, map[string]handlers.Dependency{
			"redis": stubDependency{enabled: true, err: errors.New("connection refused")},
		})
		status, env := call(t, app, "GET", "/health/ready", "", nil)
		assert.Equal(t, fiber.StatusServiceUnavailable, status)
		require.NotNil(t, env.Error)
		assert.Equal(t, "connection refused", env.Error.Details["redis"])
	})

	t.Run("metrics count requests", func(t *testing.T) {
		app := newTestApp(t, nil)
		call(t, app, "GET", "/health/live", "", nil)

		req := httptest.NewRequest("GET", "/metrics", nil)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		var snap observability.Snapshot
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		assert.Equal(t, int64(1), snap.Requests["/health/live|GET|200"])
	})
}
