package loop

import "time"

// Plan is the planner's captured output for one iteration. IsComplete is
// advisory: it is surfaced to observers but never stops the loop.
type Plan struct {
	Summary           string   `json:"summary"`
	Steps             []string `json:"steps,omitempty"`
	Validation        []string `json:"validation,omitempty"`
	IsComplete        bool     `json:"is_complete"`
	CompletionMessage string   `json:"completion_message,omitempty"`
}

// Stats accumulates across all iterations, including failed ones. Token
// counts keep accumulating across retries of the same turn rather than
// resetting.
type Stats struct {
	Iterations   int
	Commits      int
	LinesAdded   int
	LinesRemoved int
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	LastTool     string
	Failures     []string
}

// Mood is the loop's coarse activity signal, consumed only by the
// observer for interactive feedback.
type Mood string

const (
	MoodPlanning   Mood = "planning"
	MoodBuilding   Mood = "building"
	MoodReviewing  Mood = "reviewing"
	MoodCommitting Mood = "committing"
	MoodWaiting    Mood = "waiting"
	MoodRecovering Mood = "recovering"
)

// State is the in-memory view of loop progress. Everything durable lives
// in git; State exists for observers and the final report.
type State struct {
	Iteration int
	Plans     []Plan
	Stats     Stats
	Mood      Mood
}

// Observer receives loop progress callbacks. All fields are optional;
// the loop never blocks on an observer. Passed explicitly into the
// runner so the core stays testable without a terminal.
type Observer struct {
	OnIteration func(n int)
	OnMood      func(m Mood)
	OnPlan      func(p Plan)
	OnCommit    func(hash, message string)
	OnBackoff   func(remaining time.Duration)
	OnFailure   func(phase, message string)
}

func (o Observer) iteration(n int) {
	if o.OnIteration != nil {
		o.OnIteration(n)
	}
}

func (o Observer) mood(s *State, m Mood) {
	s.Mood = m
	if o.OnMood != nil {
		o.OnMood(m)
	}
}

func (o Observer) plan(p Plan) {
	if o.OnPlan != nil {
		o.OnPlan(p)
	}
}

func (o Observer) commit(hash, message string) {
	if o.OnCommit != nil {
		o.OnCommit(hash, message)
	}
}

func (o Observer) backoff(remaining time.Duration) {
	if o.OnBackoff != nil {
		o.OnBackoff(remaining)
	}
}

func (o Observer) failure(phase, message string) {
	if o.OnFailure != nil {
		o.OnFailure(phase, message)
	}
}
