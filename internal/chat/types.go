package chat

import (
	"strings"
	"time"
)

// Mode selects the search scope.
type Mode string

const (
	ModeGlobal  Mode = "global"
	ModeChapter Mode = "chapter"
	ModeModule  Mode = "module"
)

// ParseMode maps a request value to a Mode, defaulting to global.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeChapter:
		return ModeChapter
	case ModeModule:
		return ModeModule
	default:
		return ModeGlobal
	}
}

// Filtered reports whether searches in this mode are restricted to a module.
// Only chapter mode filters.
func (m Mode) Filtered() bool { return m == ModeChapter }

// Difficulty is the learner's level.
type Difficulty string

const (
	Beginner     Difficulty = "beginner"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
	// General is used for levels outside the three tiers.
	General Difficulty = "general"
)

// ParseDifficulty maps a request value to a Difficulty. An empty value
// means beginner; anything unrecognized is General.
func ParseDifficulty(s string) Difficulty {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case "":
		return Beginner
	case Beginner, Intermediate, Advanced:
		return d
	default:
		return General
	}
}

// Style is the explanation-style instruction for the tier.
func (d Difficulty) Style() string {
	switch d {
	case Beginner:
		return "simple explanations without technical jargon"
	case Intermediate:
		return "moderate technical depth with practical examples"
	case Advanced:
		return "detailed technical explanations with advanced concepts"
	default:
		return "clear explanations"
	}
}

// Intent is what the learner wants from the answer.
type Intent string

const (
	IntentExplain     Intent = "explain"
	IntentCodeExample Intent = "code_example"
	IntentDebug       Intent = "debug"
	IntentClarify     Intent = "clarify"
)

// ParseIntent maps a request value to an Intent, defaulting to explain.
func ParseIntent(s string) Intent {
	switch i := Intent(strings.ToLower(strings.TrimSpace(s))); i {
	case IntentExplain, IntentCodeExample, IntentDebug, IntentClarify:
		return i
	default:
		return IntentExplain
	}
}

// Request is one question from a learner.
type Request struct {
	Query                 string
	UserID                string
	Mode                  string
	ChapterID             string
	ModuleSlug            string
	ConversationSessionID string
	ParentMessageID       string
	Intent                string
	Difficulty            string
}

// Citation is a course chunk the answer drew on.
type Citation struct {
	ChapterID      string  `json:"chapter_id"`
	ChapterTitle   string  `json:"chapter_title"`
	ModuleSlug     string  `json:"module_slug"`
	Excerpt        string  `json:"excerpt"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ConversationContext summarizes where the conversation stands.
type ConversationContext struct {
	SessionID       *string  `json:"session_id"`
	Topics          []string `json:"topics"`
	NextSuggestions []string `json:"next_suggestions"`
}

// Result is the answer returned to the learner.
type Result struct {
	MessageID           string              `json:"message_id"`
	Response            string              `json:"response"`
	Sources             []Citation          `json:"sources"`
	ConversationContext ConversationContext `json:"conversation_context"`
	FollowUpOptions     []string            `json:"follow_up_options"`
	CreatedAt           time.Time           `json:"created_at"`
}

// Session is a freshly started conversation.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryEntry is one exchange in a session.
type HistoryEntry struct {
	MessageID   string     `json:"message_id"`
	Query       string     `json:"query"`
	Response    string     `json:"response"`
	Intent      string     `json:"intent"`
	WasFollowUp bool       `json:"was_follow_up"`
	Sources     []Citation `json:"sources"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SessionHistory is the conversation so far.
type SessionHistory struct {
	SessionID           string         `json:"session_id"`
	UserID              string         `json:"user_id"`
	CreatedAt           time.Time      `json:"created_at"`
	ConversationHistory []HistoryEntry `json:"conversation_history"`
	TopicsDiscussed     []string       `json:"topics_discussed"`
}

// RateRequest is feedback on one answer.
type RateRequest struct {
	Rating  int   `json:"rating"`
	Helpful *bool `json:"helpful,omitempty"`
}

// Rating is the stored feedback after a RateRequest.
type Rating struct {
	MessageID      string `json:"message_id"`
	Rating         int    `json:"rating"`
	HelpfulCount   int    `json:"helpful_count"`
	UnhelpfulCount int    `json:"unhelpful_count"`
}
