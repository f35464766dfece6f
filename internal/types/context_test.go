package types

import (
	"context"
	"testing"
)

func TestWithCaller_GetCaller(t *testing.T) {
	t.Run("round-trip stores and retrieves caller", func(t *testing.T) {
		ctx := WithCaller(context.Background(), Caller{UserID: "user-123"})
		got, ok := GetCaller(ctx)
		if !ok {
			t.Fatal("expected ok to be true")
		}
		if got.UserID != "user-123" {
			t.Errorf("UserID = %q, want user-123", got.UserID)
		}
	})

	t.Run("missing caller reports not ok", func(t *testing.T) {
		if _, ok := GetCaller(context.Background()); ok {
			t.Error("expected ok to be false on empty context")
		}
	})

	t.Run("empty user id reports not ok", func(t *testing.T) {
		ctx := WithCaller(context.Background(), Caller{})
		if _, ok := GetCaller(ctx); ok {
			t.Error("expected ok to be false for empty UserID")
		}
	})
}

func TestRequestID(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %q", got)
	}
	ctx := WithRequestID(context.Background(), "req-abc")
	if got := GetRequestID(ctx); got != "req-abc" {
		t.Errorf("GetRequestID = %q, want req-abc", got)
	}
}
