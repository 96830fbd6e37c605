package model

// Model provides a generic API for invoking AI models with synchronous
// request-response patterns. It extends CallHandler to provide a complete
// AI model abstraction that handles the process of sending requests and
// receiving complete responses. The interface uses Go generics to accommodate
// different request and response types, enhancing flexibility and adaptability
// across different AI model implementations.
//
// By embedding CallHandler, Model inherits the core functionality for
// synchronous AI model interactions while maintaining a clear semantic
// distinction as a complete AI model interface. This design allows Model
// to be used interchangeably with CallHandler while providing additional
// model-specific context and behavior.
//
// The Model interface follows a simple request-response pattern where each
// call is synchronous and returns a complete response. This is suitable for
// scenarios where you need the full result before proceeding, such as:
//   - Single-turn conversations or Q&A sessions
//   - Batch processing of embeddings
//   - Image generation requests
//   - Classification or analysis tasks
//   - Function calling with complete responses
//   - Model evaluation and benchmarking
type Model[Request any, Response any] interface {
	// CallHandler provides the core synchronous call functionality.
	// Enables direct usage wherever CallHandler is expected and seamless
	// integration with middleware chains designed for CallHandler.
	CallHandler[Request, Response]
}
