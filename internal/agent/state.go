package agent

import (
	"sync"

	"github.com/google/uuid"

	"comfypilot/internal/chat"
	"comfypilot/internal/logging"
)

// DefaultRoundCap bounds automatic resubmissions per user send.
const DefaultRoundCap = 3

// State is the controller's position in a turn.
type State int

const (
	StateIdle State = iota
	StateAwaitingModel
	StateModelResponded
	StateDispatchingTools
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting-model"
	case StateModelResponded:
		return "model-responded"
	case StateDispatchingTools:
		return "dispatching-tools"
	default:
		return "unknown"
	}
}

// Decision is the outcome of evaluating an assistant message after a change.
type Decision int

const (
	// DecisionNone: the message requests no tools.
	DecisionNone Decision = iota
	// DecisionWait: some tool calls have no result yet.
	DecisionWait
	// DecisionStop: the message ends in text. The round counter is reset.
	DecisionStop
	// DecisionResubmit: every call is resolved and the request goes back to the model.
	DecisionResubmit
	// DecisionDuplicate: this message state already triggered a resubmission.
	DecisionDuplicate
	// DecisionCapReached: resubmission denied by the round cap. The counter is reset.
	DecisionCapReached
	// DecisionStale: the message belongs to a superseded user send.
	DecisionStale
)

func (d Decision) String() string {
	switch d {
	case DecisionNone:
		return "none"
	case DecisionWait:
		return "wait"
	case DecisionStop:
		return "stop"
	case DecisionResubmit:
		return "resubmit"
	case DecisionDuplicate:
		return "duplicate"
	case DecisionCapReached:
		return "cap-reached"
	case DecisionStale:
		return "stale"
	default:
		return "unknown"
	}
}

type trigger struct {
	messageID string
	parts     int
}

// LoopState bounds and deduplicates automatic resubmission for one thread.
// A new lineage begins with every user send; evaluations carrying an older
// lineage are ignored.
type LoopState struct {
	round   int
	limit   int
	lineage string
	last    trigger
	mu      sync.Mutex
}

// NewLoopState creates a loop state. A non-positive cap uses DefaultRoundCap.
func NewLoopState(limit int) *LoopState {
	if limit <= 0 {
		limit = DefaultRoundCap
	}
	return &LoopState{limit: limit, lineage: uuid.NewString()}
}

// Reset starts a new lineage with the round counter at zero and returns it.
func (s *LoopState) Reset() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.round = 0
	s.last = trigger{}
	s.lineage = uuid.NewString()
	return s.lineage
}

// Abandon zeroes the round counter after a failed turn. It does nothing
// when lineage has already been superseded.
func (s *LoopState) Abandon(lineage string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lineage != s.lineage {
		return
	}
	s.round = 0
	s.last = trigger{}
}

// Lineage returns the current lineage.
func (s *LoopState) Lineage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lineage
}

// Round returns the number of resubmissions in the current lineage.
func (s *LoopState) Round() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.round
}

// Cap returns the round cap.
func (s *LoopState) Cap() int {
	return s.limit
}

// Evaluate applies the transition rule to the newest assistant message.
// It is safe to call repeatedly with the same message state: only the
// first evaluation of a (message ID, part count) pair can resubmit.
func (s *LoopState) Evaluate(lineage string, msg *chat.Message) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lineage != s.lineage {
		return DecisionStale
	}
	if msg == nil || msg.Role != chat.RoleAssistant {
		return DecisionNone
	}

	last, ok := msg.LastPart()
	if !ok {
		return DecisionNone
	}
	if last.Kind == chat.PartText {
		s.round = 0
		return DecisionStop
	}
	if !msg.HasToolCalls() {
		return DecisionNone
	}
	if len(msg.PendingCalls()) > 0 {
		return DecisionWait
	}
	if last.Kind != chat.PartToolResult {
		return DecisionNone
	}

	t := trigger{messageID: msg.ID, parts: len(msg.Parts)}
	if t == s.last {
		return DecisionDuplicate
	}
	s.last = t

	if s.round+1 > s.limit {
		logging.Warn("tool round cap reached", "cap", s.limit, "message", msg.ID)
		s.round = 0
		return DecisionCapReached
	}
	s.round++
	return DecisionResubmit
}
