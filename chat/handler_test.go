package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsCallHandlerAndFromCallHandlerRoundTrip(t *testing.T) {
	transport := TransportFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{Message: Message{Content: "echo: " + req.Messages[0].Content}}, nil
	})

	handler := AsCallHandler(transport)
	back := FromCallHandler(handler)

	resp, err := back.Call(context.Background(), Request{Messages: []Message{{Content: "hi"}}})
	require.NoError(t, err)
	require.Equal(t, "echo: hi", resp.Message.Content)
}
