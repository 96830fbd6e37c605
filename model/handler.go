package model

import "context"

// CallHandler provides a generic API for invoking AI models with synchronous
// request-response patterns. It abstracts the interaction with various types
// of AI models by handling the process of sending requests and receiving
// complete responses. The interface uses Go generics to accommodate different
// request and response types, enhancing flexibility and adaptability across
// different AI model implementations.
//
// CallHandler is suitable for scenarios where you need the full result before
// proceeding, such as:
//   - Single-turn conversations or Q&A sessions
//   - Batch processing of embeddings
//   - Image generation requests
//   - Classification or analysis tasks
//   - Function calling with complete responses
type CallHandler[Request any, Response any] interface {
	// Call executes a request to the AI model and returns the complete response.
	// This method is synchronous and blocks until the model generates the full
	// response or an error occurs.
	Call(ctx context.Context, req Request) (Response, error)
}

// CallHandlerFunc is a function type that implements the CallHandler interface.
// It allows regular functions to be used as CallHandler implementations,
// providing a convenient way to create handlers without defining new types.
type CallHandlerFunc[Request any, Response any] func(ctx context.Context, req Request) (Response, error)

// Call implements the CallHandler interface for CallHandlerFunc.
// It delegates to the underlying function, allowing function types
// to be used wherever a CallHandler is expected.
func (c CallHandlerFunc[Request, Response]) Call(ctx context.Context, req Request) (Response, error) {
	return c(ctx, req)
}
