package inbound

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fundward/fundward/internal/pkg/config"
	"github.com/fundward/fundward/internal/pkg/idempotency"
	"github.com/fundward/fundward/internal/pkg/router"
)

type fakeIdemp struct {
	state      idempotency.State
	acquireErr error
	acquired   []string
	released   []string
}

func (f *fakeIdemp) Acquire(_ context.Context, key string, _ time.Duration) (idempotency.State, error) {
	f.acquired = append(f.acquired, key)
	if f.acquireErr != nil {
		return idempotency.StateError, f.acquireErr
	}
	return f.state, nil
}

func (f *fakeIdemp) MarkCompleted(_ context.Context, key string, _ time.Duration) error {
	f.released = append(f.released, key)
	return nil
}

func (f *fakeIdemp) MarkFailed(context.Context, string, time.Duration) error { return nil }

func (f *fakeIdemp) Exec(ctx context.Context, _ string, fn func(context.Context) error, _ ...idempotency.Option) error {
	return fn(ctx)
}

func newTestConfig(t *testing.T, yaml string) config.Config {
	t.Helper()
	cfg, err := config.NewViperFromBytes("yaml", []byte(yaml))
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	return cfg
}

func triggerRequest(token string) *router.Request {
	req := httptest.NewRequest("POST", "/api/v1/notify/deliveries/process", nil)
	if token != "" {
		req.Header.Set(triggerTokenHeader, token)
	}
	return &router.Request{Request: req}
}

func TestCheckTriggerToken(t *testing.T) {
	h := &HTTPEndpoint{cfg: newTestConfig(t, "notify:\n  trigger_token: cron-secret\n")}

	t.Run("matching token passes", func(t *testing.T) {
		if err := h.checkTriggerToken(triggerRequest("cron-secret")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		if err := h.checkTriggerToken(triggerRequest("guess")); err == nil {
			t.Fatal("expected unauthorized error")
		}
	})

	t.Run("missing token is rejected", func(t *testing.T) {
		if err := h.checkTriggerToken(triggerRequest("")); err == nil {
			t.Fatal("expected unauthorized error")
		}
	})

	t.Run("unconfigured token denies everything", func(t *testing.T) {
		bare := &HTTPEndpoint{cfg: newTestConfig(t, "notify: {}\n")}
		if err := bare.checkTriggerToken(triggerRequest("")); err == nil {
			t.Fatal("expected denial when no token is configured")
		}
	})
}

func TestRunGuarded(t *testing.T) {
	run := func(h *HTTPEndpoint) (any, error) {
		return h.runGuarded(context.Background(), "notify:jobs:test", func(context.Context) (any, error) {
			return "ran", nil
		})
	}

	t.Run("runs and releases the guard", func(t *testing.T) {
		idemp := &fakeIdemp{state: idempotency.StateNone}
		h := &HTTPEndpoint{idemp: idemp}

		out, err := run(h)
		if err != nil || out != "ran" {
			t.Fatalf("expected guarded run, got %v %v", out, err)
		}
		if len(idemp.acquired) != 1 || len(idemp.released) != 1 {
			t.Fatalf("expected acquire and release, got %v %v", idemp.acquired, idemp.released)
		}
	})

	t.Run("overlapping trigger is a conflict", func(t *testing.T) {
		idemp := &fakeIdemp{state: idempotency.StateInProgress}
		h := &HTTPEndpoint{idemp: idemp}

		if _, err := run(h); err == nil {
			t.Fatal("expected conflict error")
		}
		if len(idemp.released) != 0 {
			t.Fatal("a rejected trigger must not release the holder's guard")
		}
	})

	t.Run("guard backend failure falls open", func(t *testing.T) {
		idemp := &fakeIdemp{acquireErr: errors.New("redis down")}
		h := &HTTPEndpoint{idemp: idemp}

		out, err := run(h)
		if err != nil || out != "ran" {
			t.Fatalf("expected unguarded run, got %v %v", out, err)
		}
	})

	t.Run("nil guard runs directly", func(t *testing.T) {
		h := &HTTPEndpoint{}

		out, err := run(h)
		if err != nil || out != "ran" {
			t.Fatalf("expected direct run, got %v %v", out, err)
		}
	})
}

func TestParseOptionalTime(t *testing.T) {
	t.Run("empty means unset", func(t *testing.T) {
		got, err := parseOptionalTime("")
		if err != nil || got != nil {
			t.Fatalf("expected nil, got %v %v", got, err)
		}
	})

	t.Run("rfc3339 parses", func(t *testing.T) {
		got, err := parseOptionalTime("2026-08-25T10:00:00Z")
		if err != nil || got == nil {
			t.Fatalf("unexpected result %v %v", got, err)
		}
		if want := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC); !got.Equal(want) {
			t.Fatalf("parsed %v, want %v", got, want)
		}
	})

	t.Run("garbage is an error", func(t *testing.T) {
		if _, err := parseOptionalTime("next tuesday"); err == nil {
			t.Fatal("expected parse error")
		}
	})
}
