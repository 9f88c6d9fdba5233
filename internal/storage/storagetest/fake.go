// Package storagetest provides an in-memory stand-in for the Qdrant client.
package storagetest

import (
	"context"
	"errors"
	"sync"

	"github.com/qdrant/go-client/qdrant"
)

var errUpsertRejected = errors.New("upsert rejected")

// FakePoints records calls and returns canned results. Set the *Err fields
// to make the matching call fail.
type FakePoints struct {
	mu sync.Mutex

	Collections   []string
	QueryResults  []*qdrant.ScoredPoint
	Upserts       []*qdrant.UpsertPoints
	Queries       []*qdrant.QueryPoints
	Deletes       []*qdrant.DeletePoints
	CreatedIndex  []string
	Created       []*qdrant.CreateCollection
	Dropped       []string
	HealthTitle   string
	FailUpsertFor map[uint64]bool // any upsert containing one of these ids fails

	HealthErr error
	QueryErr  error
	UpsertErr error
	DeleteErr error
}

// NewFakePoints returns a healthy fake with no collections.
func NewFakePoints() *FakePoints {
	return &FakePoints{HealthTitle: "qdrant - vector search engine"}
}

func (f *FakePoints) HealthCheck(context.Context) (*qdrant.HealthCheckReply, error) {
	if f.HealthErr != nil {
		return nil, f.HealthErr
	}
	return &qdrant.HealthCheckReply{Title: f.HealthTitle, Version: "1.16.2"}, nil
}

func (f *FakePoints) ListCollections(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Collections...), nil
}

func (f *FakePoints) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, req)
	f.Collections = append(f.Collections, req.CollectionName)
	return nil
}

func (f *FakePoints) CreateFieldIndex(_ context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreatedIndex = append(f.CreatedIndex, req.FieldName)
	return &qdrant.UpdateResult{}, nil
}

func (f *FakePoints) DeleteCollection(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dropped = append(f.Dropped, name)
	kept := f.Collections[:0]
	for _, c := range f.Collections {
		if c != name {
			kept = append(kept, c)
		}
	}
	f.Collections = kept
	return nil
}

func (f *FakePoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpsertErr != nil {
		return nil, f.UpsertErr
	}
	for _, p := range req.Points {
		if f.FailUpsertFor[p.GetId().GetNum()] {
			return nil, errUpsertRejected
		}
	}
	f.Upserts = append(f.Upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *FakePoints) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return nil, f.DeleteErr
	}
	f.Deletes = append(f.Deletes, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *FakePoints) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Queries = append(f.Queries, req)
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	return f.QueryResults, nil
}

func (f *FakePoints) Close() error { return nil }

// UpsertedPoints flattens every recorded upsert.
func (f *FakePoints) UpsertedPoints() []*qdrant.PointStruct {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*qdrant.PointStruct
	for _, u := range f.Upserts {
		out = append(out, u.Points...)
	}
	return out
}

// ScoredPoint builds a search result with the given payload.
func ScoredPoint(score float32, payload map[string]any) *qdrant.ScoredPoint {
	return &qdrant.ScoredPoint{
		Score:   score,
		Payload: qdrant.NewValueMap(payload),
	}
}
