package gemini

import "fmt"

// TurnKind tags one entry in a conversation.
type TurnKind int

const (
	TurnUserText TurnKind = iota
	TurnModelText
	TurnModelToolCall
	TurnToolResult
)

// Turn is one conversation entry. ToolName is set on tool-call turns and
// stamped onto the following tool-result turn, the backend needs the pairing
// to attribute results.
type Turn struct {
	Kind     TurnKind
	Text     string
	ToolName string
	ToolArgs map[string]any
}

// Conversation is the append-only turn sequence of one tool-calling request.
// A tool-call turn must be answered by exactly one tool-result turn before
// the next model invocation.
type Conversation struct {
	turns []Turn
}

// NewConversation starts a conversation with the opening user prompt.
func NewConversation(promptText string) *Conversation {
	return &Conversation{
		turns: []Turn{{Kind: TurnUserText, Text: promptText}},
	}
}

// AddModelText appends a model text turn.
func (c *Conversation) AddModelText(text string) {
	c.turns = append(c.turns, Turn{Kind: TurnModelText, Text: text})
}

// AddToolCall appends a model tool-call turn.
func (c *Conversation) AddToolCall(name string, args map[string]any) {
	c.turns = append(c.turns, Turn{Kind: TurnModelToolCall, ToolName: name, ToolArgs: args})
}

// AddToolResult appends the result for the pending tool call. It fails when
// no call is waiting for an answer.
func (c *Conversation) AddToolResult(text string) error {
	name, ok := c.pendingCall()
	if !ok {
		return fmt.Errorf("no pending tool call to answer")
	}
	c.turns = append(c.turns, Turn{Kind: TurnToolResult, Text: text, ToolName: name})
	return nil
}

// pendingCall reports the tool call awaiting a result, if any.
func (c *Conversation) pendingCall() (string, bool) {
	if len(c.turns) == 0 {
		return "", false
	}
	last := c.turns[len(c.turns)-1]
	if last.Kind != TurnModelToolCall {
		return "", false
	}
	return last.ToolName, true
}

// Turns returns the ordered turn sequence.
func (c *Conversation) Turns() []Turn {
	return c.turns
}
