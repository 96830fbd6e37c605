package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlmkit/rlm/chat"
)

func TestReduceMessagesKeepsSystemAndLastK(t *testing.T) {
	counter, err := newTokenCounter()
	require.NoError(t, err)

	messages := []chat.Message{
		{Role: chat.RoleSystem, Content: "system prompt"},
	}
	for i := 0; i < 20; i++ {
		messages = append(messages, chat.Message{
			Role:    chat.RoleUser,
			Content: strings.Repeat("word ", 50) + string(rune('a'+i)),
		})
	}

	out := reduceMessages(messages, 200, 4, counter)
	require.Equal(t, chat.RoleSystem, out[0].Role)
	require.Equal(t, messages[len(messages)-4], out[len(out)-4])
	require.Equal(t, messages[len(messages)-1], out[len(out)-1])
	require.Less(t, len(out), len(messages))
}

func TestReduceMessagesNoBudgetIsNoop(t *testing.T) {
	counter, err := newTokenCounter()
	require.NoError(t, err)

	messages := []chat.Message{{Role: chat.RoleUser, Content: "hi"}}
	out := reduceMessages(messages, 0, 4, counter)
	require.Equal(t, messages, out)
}

func TestReduceMessagesRestoresChronologicalOrder(t *testing.T) {
	counter, err := newTokenCounter()
	require.NoError(t, err)

	messages := []chat.Message{
		{Role: chat.RoleSystem, Content: "sys"},
		{Role: chat.RoleUser, Content: "one"},
		{Role: chat.RoleUser, Content: "two"},
		{Role: chat.RoleUser, Content: "three"},
		{Role: chat.RoleUser, Content: "four"},
		{Role: chat.RoleUser, Content: "five"},
	}

	out := reduceMessages(messages, 1000, 2, counter)
	var contents []string
	for _, m := range out {
		contents = append(contents, m.Content)
	}
	require.Equal(t, []string{"sys", "one", "two", "three", "four", "five"}, contents)
}
