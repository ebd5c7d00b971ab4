package middleware

import (
	"context"
	"testing"
	"time"

	"post-rpc/wire"
)

func okHandler(ctx context.Context, req *wire.Request) *wire.Response {
	return wire.NewSuccess(req.ID, []byte(`"ok"`))
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *wire.Request) *wire.Response {
				order = append(order, name+"-before")
				resp := next(ctx, req)
				order = append(order, name+"-after")
				return resp
			}
		}
	}

	h := Chain(tag("a"), tag("b"))(okHandler)
	req := &wire.Request{JSONRPC: wire.Version, Method: "m", ID: "1"}
	if resp := h(context.Background(), req); resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	want := []string{"a-before", "b-before", "b-after", "a-after"}
	if len(order) != len(want) {
		t.Fatalf("expect %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expect %v, got %v", want, order)
		}
	}
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(1, 2)(okHandler)
	req := &wire.Request{JSONRPC: wire.Version, Method: "m", ID: "1"}

	rejected := 0
	for i := 0; i < 5; i++ {
		if resp := h(context.Background(), req); resp.Error != nil {
			rejected++
			if resp.Error.Code != wire.CodeInternalError {
				t.Fatalf("expect %d, got %d", wire.CodeInternalError, resp.Error.Code)
			}
		}
	}
	if rejected != 3 {
		t.Fatalf("burst 2 of 5 should reject 3, rejected %d", rejected)
	}
}

func TestTimeout(t *testing.T) {
	slow := func(ctx context.Context, req *wire.Request) *wire.Response {
		time.Sleep(200 * time.Millisecond)
		return wire.NewSuccess(req.ID, []byte(`"late"`))
	}
	h := Timeout(20 * time.Millisecond)(slow)
	req := &wire.Request{JSONRPC: wire.Version, Method: "m", ID: "1"}

	resp := h(context.Background(), req)
	if resp.Error == nil || resp.Error.Code != wire.CodeInternalError {
		t.Fatalf("expect internal error on timeout, got %+v", resp)
	}
	if resp.ID != "1" {
		t.Fatalf("timeout response lost correlation id: %q", resp.ID)
	}
}

func TestRecovery(t *testing.T) {
	panicky := func(ctx context.Context, req *wire.Request) *wire.Response {
		panic("kaboom")
	}
	h := Recovery()(panicky)
	req := &wire.Request{JSONRPC: wire.Version, Method: "m", ID: "1"}

	resp := h(context.Background(), req)
	if resp.Error == nil || resp.Error.Code != wire.CodeInternalError {
		t.Fatalf("expect internal error, got %+v", resp)
	}
	if string(resp.Error.Data) != `"kaboom"` {
		t.Fatalf("panic value not attached as data: %s", resp.Error.Data)
	}
}
