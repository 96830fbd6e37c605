package model

import (
	"slices"
	"sync"
)

// CallMiddleware defines a function type for implementing middleware that wraps
// CallHandler instances. Middleware provides a way to add cross-cutting concerns
// such as logging, authentication, rate limiting, caching, and error handling
// to AI model calls without modifying the core handler logic.
type CallMiddleware[Request any, Response any] func(handler CallHandler[Request, Response]) CallHandler[Request, Response]

// MiddlewareManager manages and applies the call middleware chain for AI model
// implementations. It provides a centralized way to configure, organize, and
// apply middleware to handlers, ensuring consistent behavior across different
// AI model endpoints.
type MiddlewareManager[CallRequest any, CallResponse any] struct {
	mu              sync.RWMutex
	callMiddlewares []CallMiddleware[CallRequest, CallResponse]
}

// BuildCallHandler applies the registered call middleware chain to the provided
// CallHandler endpoint. The middleware is wrapped in reverse order, so the first added is the outermost and executes first.
// This method is thread-safe and uses a read lock for consistent middleware chain application.
func (m *MiddlewareManager[CallRequest, CallResponse]) BuildCallHandler(endpoint CallHandler[CallRequest, CallResponse]) CallHandler[CallRequest, CallResponse] {
	m.mu.RLock()
	defer m.mu.RUnlock()

	currentHandler := endpoint
	for i := len(m.callMiddlewares) - 1; i >= 0; i-- {
		currentHandler = m.callMiddlewares[i](currentHandler)
	}

	return currentHandler
}

// UseCallMiddlewares registers one or more CallMiddleware instances to be applied
// to CallHandler endpoints. The middleware will be applied in registration order.
// Returns the MiddlewareManager instance for method chaining.
func (m *MiddlewareManager[CallRequest, CallResponse]) UseCallMiddlewares(callMiddlewares ...CallMiddleware[CallRequest, CallResponse]) *MiddlewareManager[CallRequest, CallResponse] {
	if len(callMiddlewares) == 0 {
		return m
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, callMiddleware := range callMiddlewares {
		if callMiddleware == nil {
			continue
		}

		m.callMiddlewares = append(m.callMiddlewares, callMiddleware)
	}

	return m
}

// Clone creates a deep copy of the MiddlewareManager with an independent middleware
// chain. Useful for creating separate configurations that start with the same base
// middleware but may diverge over time. Thread-safe operation with no shared state.
func (m *MiddlewareManager[CallRequest, CallResponse]) Clone() *MiddlewareManager[CallRequest, CallResponse] {
	m.mu.Lock()
	defer m.mu.Unlock()

	return &MiddlewareManager[CallRequest, CallResponse]{
		callMiddlewares: slices.Clone(m.callMiddlewares),
	}
}
