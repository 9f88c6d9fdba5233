package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bull/robotics-tutor/internal/database"
	"github.com/bull/robotics-tutor/internal/generation"
	"github.com/bull/robotics-tutor/internal/storage"
)

type fakeEmbedder struct {
	calls atomic.Int32
	vec   []float32
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	calls   int
	hits    []storage.SearchHit
	queries []storage.SearchQuery
}

func (f *fakeSearcher) Search(_ context.Context, q storage.SearchQuery) []storage.SearchHit {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.queries = append(f.queries, q)
	return f.hits
}

type fakeGenerator struct {
	calls    atomic.Int32
	reply    string
	err      error
	lastReq  generation.Request
	passages []string
	panicMsg string
}

func (f *fakeGenerator) GenerateWithContext(_ context.Context, req generation.Request, passages []string) (string, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.lastReq = req
	f.passages = passages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeChapters struct {
	mu       sync.Mutex
	chapters map[string]*database.Chapter
	err      error
	calls    int
	panicOn  string // chapter id whose lookup panics
	nilOn    string // chapter id returned as (nil, nil)
}

func (f *fakeChapters) GetChapter(_ context.Context, id string) (*database.Chapter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if id == f.panicOn {
		var m map[string]int
		m[id]++ // nil map write
	}
	if id == f.nilOn {
		return nil, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.chapters[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return c, nil
}

type fakeMessages struct {
	mu        sync.Mutex
	stored    map[string]*database.ChatMessage
	order     []string
	createErr error
	getErr    error
	creates   int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{stored: map[string]*database.ChatMessage{}}
}

func (f *fakeMessages) Create(_ context.Context, m *database.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	cp := *m
	f.stored[m.ID] = &cp
	f.order = append(f.order, m.ID)
	return nil
}

func (f *fakeMessages) Get(_ context.Context, userID, id string) (*database.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	m, ok := f.stored[id]
	if !ok || m.UserID != userID {
		return nil, database.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessages) ListBySession(_ context.Context, userID, sessionID string) ([]*database.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*database.ChatMessage
	for _, id := range f.order {
		m := f.stored[id]
		if m.UserID == userID && m.ConversationSessionID != nil && *m.ConversationSessionID == sessionID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeMessages) Rate(_ context.Context, userID, id string, rating int, helpful *bool) (*database.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.stored[id]
	if !ok || m.UserID != userID {
		return nil, database.ErrNotFound
	}
	m.UserRating = &rating
	if helpful != nil {
		if *helpful {
			m.HelpfulCount++
		} else {
			m.UnhelpfulCount++
		}
	}
	cp := *m
	return &cp, nil
}
