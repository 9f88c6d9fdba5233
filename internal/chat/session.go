package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bull/robotics-tutor/internal/apperr"
	"github.com/bull/robotics-tutor/internal/database"
)

// StartSession opens a new conversation. Sessions are not stored until the
// first message refers to them.
func (s *Service) StartSession() Session {
	return Session{SessionID: s.newID(), CreatedAt: s.now()}
}

// History returns the user's messages in a session, oldest first, and the
// distinct chapter titles cited along the way.
func (s *Service) History(ctx context.Context, userID, sessionID string) (*SessionHistory, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.Validation("Session id is required", map[string]any{"field": "session_id"})
	}

	msgs, err := s.messages.ListBySession(ctx, userID, sessionID)
	if err != nil {
		return nil, apperr.ServiceUnavailable(chatServiceName, "failed to load conversation", err)
	}
	if len(msgs) == 0 {
		return nil, apperr.NotFound("Conversation session", sessionID)
	}

	h := &SessionHistory{
		SessionID:           sessionID,
		UserID:              userID,
		CreatedAt:           msgs[0].CreatedAt,
		ConversationHistory: make([]HistoryEntry, 0, len(msgs)),
		TopicsDiscussed:     []string{},
	}
	seen := map[string]bool{}
	for _, m := range msgs {
		sources := decodeSources(m.Sources)
		for _, c := range sources {
			if !seen[c.ChapterTitle] {
				seen[c.ChapterTitle] = true
				h.TopicsDiscussed = append(h.TopicsDiscussed, c.ChapterTitle)
			}
		}
		h.ConversationHistory = append(h.ConversationHistory, HistoryEntry{
			MessageID:   m.ID,
			Query:       m.Query,
			Response:    m.Response,
			Intent:      m.Intent,
			WasFollowUp: m.WasFollowUp,
			Sources:     sources,
			CreatedAt:   m.CreatedAt,
		})
	}
	return h, nil
}

// Rate records the user's feedback on one of their own answers.
func (s *Service) Rate(ctx context.Context, userID, messageID string, req RateRequest) (*Rating, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, apperr.Validation("Rating must be between 1 and 5", map[string]any{"field": "rating"})
	}

	m, err := s.messages.Rate(ctx, userID, messageID, req.Rating, req.Helpful)
	if errors.Is(err, database.ErrNotFound) {
		return nil, apperr.NotFound("Chat message", messageID)
	}
	if err != nil {
		return nil, apperr.ServiceUnavailable(chatServiceName, "failed to store rating", err)
	}

	out := &Rating{
		MessageID:      m.ID,
		HelpfulCount:   m.HelpfulCount,
		UnhelpfulCount: m.UnhelpfulCount,
	}
	if m.UserRating != nil {
		out.Rating = *m.UserRating
	}
	return out, nil
}

// decodeSources reads the stored citation snapshot; bad JSON reads as none.
func decodeSources(raw string) []Citation {
	out := []Citation{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []Citation{}
	}
	return out
}
