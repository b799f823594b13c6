package chat

import "strconv"

// ToModelMessages projects thread messages into provider order. An
// assistant message that holds tool results in place is split into the
// assistant message with its calls, one tool message per result, and a
// new assistant message for any parts that follow the results.
func ToModelMessages(msgs []*Message) []*Message {
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != RoleAssistant {
			out = append(out, m.Clone())
			continue
		}
		out = append(out, splitAssistant(m)...)
	}
	return out
}

func splitAssistant(m *Message) []*Message {
	var out []*Message
	var current *Message
	segment := 0

	flush := func() {
		if current != nil && len(current.Parts) > 0 {
			out = append(out, current)
		}
		current = nil
	}

	for _, p := range m.Clone().Parts {
		if p.Kind == PartToolResult {
			flush()
			tm := &Message{
				ID:        m.ID + ":" + p.Result.CallID,
				Role:      RoleTool,
				Parts:     []Part{p},
				CreatedAt: m.CreatedAt,
			}
			out = append(out, tm)
			continue
		}
		if current == nil {
			id := m.ID
			if segment > 0 {
				id = m.ID + ":" + strconv.Itoa(segment)
			}
			current = &Message{ID: id, Role: RoleAssistant, CreatedAt: m.CreatedAt}
			segment++
		}
		current.Parts = append(current.Parts, p)
	}
	flush()
	return out
}
