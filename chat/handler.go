package chat

import (
	"context"

	"github.com/rlmkit/rlm/model"
)

// AsCallHandler adapts a Transport to the generic model.CallHandler so it
// can be composed through model.MiddlewareManager's chain (retry, future
// cross-cutting concerns) without either package depending on the other's
// concrete types.
func AsCallHandler(t Transport) model.CallHandler[Request, Response] {
	return model.CallHandlerFunc[Request, Response](t.Call)
}

// FromCallHandler is the inverse of AsCallHandler: once middleware has been
// layered on through a MiddlewareManager, the resulting handler is handed
// back out as a plain Transport for the engine/refine/ingest callers.
func FromCallHandler(h model.CallHandler[Request, Response]) Transport {
	return TransportFunc(func(ctx context.Context, req Request) (Response, error) {
		return h.Call(ctx, req)
	})
}
