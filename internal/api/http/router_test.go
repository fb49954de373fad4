package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/lock"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/platform/platformtest"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/service"
)

type envelope struct {
	Data    json.RawMessage `json:"data"`
	Outcome string          `json:"outcome"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestApp(t *testing.T, deps ...handlers.Dependency) *fiber.App {
	t.Helper()
	fake := platformtest.New()
	fake.AddMember("U1", "Alice")
	fake.AddMember("S1", "Sam", "R-support")
	fake.AddMember("S2", "Sue", "R-support")

	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher(nil)
	service.NewAuditService(dispatcher, store.History(), zap.NewNop()).RegisterHandlers()
	engine := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  store.Tickets(),
		HistoryRepo: store.History(),
		Platform:    fake,
		Guard:       lock.NewMemoryGuard(0),
		Dispatcher:  dispatcher,
		Config:      config.TicketsConfig{SupportRoleID: "R-support"},
		GuildID:     "G1",
		After:       func(time.Duration, func()) {},
	})

	metrics := observability.NewMetrics()
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:  handlers.NewHealthHandler("ticket-engine", "test", metrics, deps...),
		Tickets: handlers.NewTicketsHandler(engine, metrics),
	})
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, env
}

func TestTicketFlowOverHTTP(t *testing.T) {
	app := newTestApp(t)

	status, env := do(t, app, "POST", "/tickets", `{"owner_id":"U1","type":"support"}`)
	if status != fiber.StatusCreated || env.Outcome != "success" {
		t.Fatalf("create = %d %+v", status, env)
	}
	var created struct {
		ID        string `json:"id"`
		ChannelID string `json:"channel_id"`
		State     string `json:"state"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode ticket: %v", err)
	}
	if created.State != "open" || created.ChannelID == "" {
		t.Fatalf("created = %+v", created)
	}
	channel := "/tickets/channel/" + created.ChannelID

	if status, env = do(t, app, "POST", channel+"/claim", `{"actor_id":"S1"}`); status != fiber.StatusOK {
		t.Fatalf("claim = %d %+v", status, env)
	}

	status, env = do(t, app, "POST", channel+"/claim", `{"actor_id":"S2"}`)
	if status != fiber.StatusConflict || env.Outcome != "already_done" || env.Error.Details["reason"] != "already_claimed" {
		t.Fatalf("second claim = %d %+v", status, env)
	}

	status, env = do(t, app, "POST", channel+"/close", `{"actor_id":"U1"}`)
	if status != fiber.StatusForbidden || env.Outcome != "not_authorized" || env.Error.Details["reason"] != "owner_cannot_close" {
		t.Fatalf("owner close = %d %+v", status, env)
	}

	if status, env = do(t, app, "POST", channel+"/close", `{"actor_id":"S1","reason":"done"}`); status != fiber.StatusOK {
		t.Fatalf("close = %d %+v", status, env)
	}

	status, env = do(t, app, "GET", "/tickets/number/1", "")
	if status != fiber.StatusOK {
		t.Fatalf("get by number = %d %+v", status, env)
	}

	status, env = do(t, app, "GET", "/tickets/"+created.ID+"/history", "")
	if status != fiber.StatusOK {
		t.Fatalf("history = %d %+v", status, env)
	}
	var history []map[string]any
	if err := json.Unmarshal(env.Data, &history); err != nil || len(history) != 3 {
		t.Fatalf("history = %s, %v", env.Data, err)
	}

	if status, env = do(t, app, "POST", "/tickets/number/1/rating", `{"actor_id":"U1","score":5}`); status != fiber.StatusOK {
		t.Fatalf("rating = %d %+v", status, env)
	}

	status, env = do(t, app, "GET", "/tickets/stats", "")
	if status != fiber.StatusOK || !strings.Contains(string(env.Data), `"open_tickets":0`) {
		t.Fatalf("stats = %d %s", status, env.Data)
	}
}

func TestValidationErrors(t *testing.T) {
	app := newTestApp(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "missing owner", method: "POST", path: "/tickets", body: `{"type":"support"}`, status: fiber.StatusBadRequest},
		{name: "unknown type", method: "POST", path: "/tickets", body: `{"owner_id":"U1","type":"billing"}`, status: fiber.StatusBadRequest},
		{name: "missing actor", method: "POST", path: "/tickets/channel/c1/claim", body: `{}`, status: fiber.StatusBadRequest},
		{name: "bad number", method: "GET", path: "/tickets/number/abc", status: fiber.StatusBadRequest},
		{name: "resolve without accept", method: "POST", path: "/tickets/channel/c1/close-request/resolve", body: `{"actor_id":"U1"}`, status: fiber.StatusBadRequest},
		{name: "unknown ticket number", method: "GET", path: "/tickets/number/77", status: fiber.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, tt.method, tt.path, tt.body)
			if status != tt.status {
				t.Fatalf("status = %d, want %d (%+v)", status, tt.status, env)
			}
			if env.Error == nil || env.Outcome == "" {
				t.Fatalf("missing error envelope: %+v", env)
			}
		})
	}
}

func TestReadiness(t *testing.T) {
	healthy := newTestApp(t, handlers.Dependency{Name: "store", Pinger: pingFunc(func(context.Context) error { return nil })})
	if status, _ := do(t, healthy, "GET", "/health/ready", ""); status != fiber.StatusOK {
		t.Fatalf("ready = %d", status)
	}

	down := newTestApp(t, handlers.Dependency{Name: "redis", Pinger: pingFunc(func(context.Context) error { return errors.New("refused") })})
	status, env := do(t, down, "GET", "/health/ready", "")
	if status != fiber.StatusServiceUnavailable || env.Error == nil || env.Error.Details["redis"] != "refused" {
		t.Fatalf("ready = %d %+v", status, env)
	}
}

func TestMetricsEndpointCountsOutcomes(t *testing.T) {
	app := newTestApp(t)
	do(t, app, "POST", "/tickets", `{"owner_id":"U1","type":"support"}`)
	do(t, app, "POST", "/tickets", `{"owner_id":"U1","type":"support"}`)

	req := httptest.NewRequest("GET", "/metrics", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	var snap observability.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Outcomes["create|success"] != 1 || snap.Outcomes["create|already_done"] != 1 {
		t.Fatalf("outcomes = %v", snap.Outcomes)
	}
}
