// Package transcript models the role-tagged conversation exchanged with the oracle.
package transcript

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn.
type Message struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// String renders the message the same way Render does for a whole transcript.
func (m Message) String() string {
	return ">>>" + strings.ToUpper(string(m.Role)) + "\n" + m.Content
}

// Transcript is an append-only conversation history.
// The zero value is an empty transcript. Append never mutates the receiver,
// so every Transcript value ever handed out stays readable and unchanged.
type Transcript struct {
	messages []Message
}

// New seeds a transcript with a system persona and the first user turn.
// An empty system prompt is skipped.
func New(system, user string) Transcript {
	var t Transcript
	if system != "" {
		t = t.Append(RoleSystem, system)
	}
	return t.Append(RoleUser, user)
}

// Append returns a copy of t extended with one message.
func (t Transcript) Append(role Role, content string) Transcript {
	// Clipping forces append to reallocate, so two transcripts that share a
	// prefix never write into the same backing array.
	return Transcript{messages: append(slices.Clip(t.messages), Message{Role: role, Content: content})}
}

// Messages returns a copy of the messages in insertion order.
func (t Transcript) Messages() []Message {
	return slices.Clone(t.messages)
}

// Len returns the number of messages.
func (t Transcript) Len() int {
	return len(t.messages)
}

// Last returns the most recent message, if any.
func (t Transcript) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// SystemPrompt returns the leading system message content, or "".
func (t Transcript) SystemPrompt() string {
	if len(t.messages) > 0 && t.messages[0].Role == RoleSystem {
		return t.messages[0].Content
	}
	return ""
}

// Render concatenates every message in order. The output is used both for
// diagnostics and for token-count estimation.
func (t Transcript) Render() string {
	var b strings.Builder
	for i, m := range t.messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.String())
	}
	return b.String()
}

// String implements fmt.Stringer.
func (t Transcript) String() string {
	return t.Render()
}

type transcriptJSON struct {
	Messages []Message `json:"messages"`
}

// MarshalJSON encodes the transcript as {"messages": [...]}.
func (t Transcript) MarshalJSON() ([]byte, error) {
	msgs := t.messages
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(transcriptJSON{Messages: msgs})
}

// UnmarshalJSON decodes the {"messages": [...]} form and rejects unknown roles.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var raw transcriptJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode transcript: %w", err)
	}
	for i, m := range raw.Messages {
		if !m.Role.Valid() {
			return fmt.Errorf("decode transcript: message %d has unknown role %q", i, m.Role)
		}
	}
	t.messages = raw.Messages
	return nil
}

// MarshalYAML exposes the message list to yaml encoders.
func (t Transcript) MarshalYAML() (interface{}, error) {
	return transcriptJSON{Messages: t.Messages()}, nil
}
