package conversation

import "errors"

// Role identifies who produced a turn. The values match the chat-completion wire format.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a call's history. Turns are never mutated after append.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// State is the conversation phase of a call.
type State string

const (
	// StateNew is a session created by the store but not yet initialized by the call flow.
	StateNew             State = ""
	StateGreeting        State = "greeting"
	StateAwaitingSpeech  State = "awaiting_speech"
	StateRetryingSilence State = "retrying_silence"
	StateEnded           State = "ended"
)

var (
	ErrInvalidSessionID = errors.New("conversation: session id is empty")
	ErrNotInitialized   = errors.New("conversation: session has no system turn")
	ErrOutOfOrder       = errors.New("conversation: turn breaks user/assistant alternation")
	ErrSessionEnded     = errors.New("conversation: session ended")
)

// MinTurns is the smallest usable cap: the system turn plus one user/assistant exchange.
const MinTurns = 3

// DefaultMaxTurns bounds the history sent to the language model.
const DefaultMaxTurns = 10
