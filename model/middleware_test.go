package model

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMiddlewareManager_CallMiddleware(t *testing.T) {
	t.Run("single middleware", func(t *testing.T) {
		manager := &MiddlewareManager[string, string]{}

		middleware := func(next CallHandler[string, string]) CallHandler[string, string] {
			return CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
				resp, err := next.Call(ctx, req+"_modified")
				if err != nil {
					return "", err
				}
				return resp + "_wrapped", nil
			})
		}

		manager.UseCallMiddlewares(middleware)

		endpoint := CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
			return "response_" + req, nil
		})

		handler := manager.BuildCallHandler(endpoint)
		resp, err := handler.Call(context.Background(), "test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		expected := "response_test_modified_wrapped"
		if resp != expected {
			t.Errorf("expected %q, got %q", expected, resp)
		}
	})

	t.Run("multiple middlewares execution order", func(t *testing.T) {
		manager := &MiddlewareManager[string, string]{}

		var executionOrder []string
		var mu sync.Mutex

		record := func(s string) {
			mu.Lock()
			executionOrder = append(executionOrder, s)
			mu.Unlock()
		}

		middleware1 := func(next CallHandler[string, string]) CallHandler[string, string] {
			return CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
				record("m1_before")
				resp, err := next.Call(ctx, req)
				record("m1_after")
				return resp, err
			})
		}

		middleware2 := func(next CallHandler[string, string]) CallHandler[string, string] {
			return CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
				record("m2_before")
				resp, err := next.Call(ctx, req)
				record("m2_after")
				return resp, err
			})
		}

		manager.UseCallMiddlewares(middleware1, middleware2)

		endpoint := CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
			record("endpoint")
			return "ok", nil
		})

		if _, err := manager.BuildCallHandler(endpoint).Call(context.Background(), "req"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// registered in order [m1, m2]; BuildCallHandler wraps in reverse so m1
		// ends up outermost and runs first.
		want := []string{"m1_before", "m2_before", "endpoint", "m2_after", "m1_after"}
		if len(executionOrder) != len(want) {
			t.Fatalf("execution order length = %d, want %d (%v)", len(executionOrder), len(want), executionOrder)
		}
		for i := range want {
			if executionOrder[i] != want[i] {
				t.Errorf("execution order[%d] = %q, want %q (full: %v)", i, executionOrder[i], want[i], executionOrder)
			}
		}
	})

	t.Run("nil middleware is skipped", func(t *testing.T) {
		manager := &MiddlewareManager[string, string]{}
		manager.UseCallMiddlewares(nil)

		endpoint := CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
			return req, nil
		})

		resp, err := manager.BuildCallHandler(endpoint).Call(context.Background(), "req")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp != "req" {
			t.Errorf("expected unmodified response, got %q", resp)
		}
	})

	t.Run("error propagates through the chain", func(t *testing.T) {
		manager := &MiddlewareManager[string, string]{}
		wantErr := errors.New("boom")

		middleware := func(next CallHandler[string, string]) CallHandler[string, string] {
			return CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
				return next.Call(ctx, req)
			})
		}
		manager.UseCallMiddlewares(middleware)

		endpoint := CallHandlerFunc[string, string](func(ctx context.Context, req string) (string, error) {
			return "", wantErr
		})

		_, err := manager.BuildCallHandler(endpoint).Call(context.Background(), "req")
		if !errors.Is(err, wantErr) {
			t.Errorf("expected %v, got %v", wantErr, err)
		}
	})
}

func TestMiddlewareManager_Clone(t *testing.T) {
	manager := &MiddlewareManager[string, string]{}
	manager.UseCallMiddlewares(func(next CallHandler[string, string]) CallHandler[string, string] {
		return next
	})

	clone := manager.Clone()
	clone.UseCallMiddlewares(func(next CallHandler[string, string]) CallHandler[string, string] {
		return next
	})

	if len(manager.callMiddlewares) != 1 {
		t.Errorf("original manager mutated by clone registration, len = %d", len(manager.callMiddlewares))
	}
	if len(clone.callMiddlewares) != 2 {
		t.Errorf("clone should carry its own additional middleware, len = %d", len(clone.callMiddlewares))
	}
}

func TestMiddlewareManager_ConcurrentAccess(t *testing.T) {
	manager := &MiddlewareManager[int, int]{}
	endpoint := CallHandlerFunc[int, int](func(ctx context.Context, req int) (int, error) {
		return req, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			manager.UseCallMiddlewares(func(next CallHandler[int, int]) CallHandler[int, int] {
				return next
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = manager.BuildCallHandler(endpoint).Call(context.Background(), 1)
		}()
	}
	wg.Wait()
}
