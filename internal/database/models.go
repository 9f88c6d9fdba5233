package database

import "time"

// User is an account row.
type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"-"`
	Name               string     `json:"name"`
	IsActive           bool       `json:"is_active"`
	IsAdmin            bool       `json:"is_admin"`
	LanguagePreference string     `json:"language_preference"`
	Theme              string     `json:"theme"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastLogin          *time.Time `json:"last_login,omitempty"`
}

// UserProfile holds optional account details.
type UserProfile struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	Bio                  string    `json:"bio"`
	AvatarURL            string    `json:"avatar_url"`
	Organization         string    `json:"organization"`
	Country              string    `json:"country"`
	EmailNotifications   bool      `json:"email_notifications"`
	ShowProgressPublicly bool      `json:"show_progress_publicly"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Module is a top-level course section.
type Module struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	SortOrder   int        `json:"sort_order"`
	IsPublished bool       `json:"is_published"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Chapter is a lesson inside a module.
type Chapter struct {
	ID                       string     `json:"id"`
	ModuleID                 string     `json:"module_id"`
	ModuleSlug               string     `json:"module_slug"`
	Slug                     string     `json:"slug"`
	Title                    string     `json:"title"`
	Description              string     `json:"description"`
	SortOrder                int        `json:"sort_order"`
	DifficultyLevel          string     `json:"difficulty_level"`
	EstimatedDurationMinutes int        `json:"estimated_duration_minutes"`
	ContentHTML              string     `json:"content_html,omitempty"`
	LearningObjectives       string     `json:"learning_objectives"`
	IsPublished              bool       `json:"is_published"`
	PublishedAt              *time.Time `json:"published_at,omitempty"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// Embedding records one indexed chunk of a chapter.
type Embedding struct {
	ID             string    `json:"id"`
	ChapterID      string    `json:"chapter_id"`
	Content        string    `json:"content"`
	ChunkIndex     int       `json:"chunk_index"`
	EmbeddingModel string    `json:"embedding_model"`
	QdrantPointID  int64     `json:"qdrant_point_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Progress status values.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// ChapterProgress tracks a user's work on one chapter.
type ChapterProgress struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"user_id"`
	ChapterID          string     `json:"chapter_id"`
	Status             string     `json:"status"`
	ProgressPercentage int        `json:"progress_percentage"`
	TimeSpentSeconds   int        `json:"time_spent_seconds"`
	QuizScore          *int       `json:"quiz_score,omitempty"`
	QuizPassed         bool       `json:"quiz_passed"`
	ExercisePassed     bool       `json:"exercise_passed"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ChatMessage is one answered question. Sources is the JSON text of the
// citations returned to the user.
type ChatMessage struct {
	ID                    string
	UserID                string
	Query                 string
	Response              string
	ConversationSessionID *string
	ParentMessageID       *string
	Intent                string
	ContextChapterID      *string
	ContextModuleSlug     *string
	UserDifficultyLevel   string
	ClarificationDepth    int
	WasFollowUp           bool
	Sources               string
	UserRating            *int
	HelpfulCount          int
	UnhelpfulCount        int
	SentimentScore        *float64
	CreatedAt             time.Time
	UpdatedAt             time.Time
}
