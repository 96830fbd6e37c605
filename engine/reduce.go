package engine

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/rlmkit/rlm/chat"
)

// tokenCounter counts tokens with the same cl100k_base encoding throughout
// the package: reduceMessages' "keep system + last k, fill backward" policy
// and the exported CountTokens helper both need identical accounting.
type tokenCounter struct {
	encoding *tiktoken.Tiktoken
}

func newTokenCounter() (*tokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &tokenCounter{encoding: enc}, nil
}

func (c *tokenCounter) count(content string) int {
	return len(c.encoding.Encode(content, nil, nil))
}

// CountTokens sums the cl100k_base token count of every message's content,
// for callers (the Environment facade's history-tokens result field) that
// want the same accounting reduceMessages uses without duplicating the
// tiktoken wiring.
func CountTokens(messages []chat.Message) (int, error) {
	counter, err := newTokenCounter()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range messages {
		total += counter.count(m.Content)
	}
	return total, nil
}

// reduceMessages implements spec.md §4.5 step 1: always keep the system
// message (messages[0], if one is present) and the last keepLastK messages;
// fill whatever budget remains with the most recent earlier messages,
// skipping any individual message that would overflow what's left; restore
// chronological order.
func reduceMessages(messages []chat.Message, budget, keepLastK int, counter *tokenCounter) []chat.Message {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}

	var system *chat.Message
	rest := messages
	if messages[0].Role == chat.RoleSystem {
		system = &messages[0]
		rest = messages[1:]
	}

	tail := rest
	var head []chat.Message
	if len(rest) > keepLastK {
		head = rest[:len(rest)-keepLastK]
		tail = rest[len(rest)-keepLastK:]
	}

	remaining := budget
	if system != nil {
		remaining -= counter.count(system.Content)
	}
	for _, m := range tail {
		remaining -= counter.count(m.Content)
	}

	var kept []chat.Message
	for i := len(head) - 1; i >= 0; i-- {
		m := head[i]
		cost := counter.count(m.Content)
		if cost > remaining {
			continue
		}
		remaining -= cost
		kept = append(kept, m)
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	out := make([]chat.Message, 0, len(kept)+len(tail)+1)
	if system != nil {
		out = append(out, *system)
	}
	out = append(out, kept...)
	out = append(out, tail...)
	return out
}
