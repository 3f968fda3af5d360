package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sakif/journal/internal/apperror"
	"github.com/sakif/journal/internal/model"
	"github.com/sakif/journal/internal/query"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// Hand-written in-memory fakes of the repository interfaces. They follow the
// same contracts as the SQL stores: owner-scoped reads and writes, NotFound
// for foreign entries, newest-first listing with ties in insertion order.
// Setting one of the *Err fields simulates a store failure.

type fakeEntryRepo struct {
	mu      sync.Mutex
	entries []model.Entry // insertion order
	nextID  int
	now     func() time.Time

	createErr error
	listErr   error
	getErr    error
	listCalls int
}

func newFakeEntryRepo() *fakeEntryRepo {
	return &fakeEntryRepo{now: time.Now}
}

func (f *fakeEntryRepo) Create(_ context.Context, e *model.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	e.ID = fmt.Sprintf("entry-%d", f.nextID)
	now := f.now().UTC().Truncate(query.Resolution)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	stored := *e
	stored.Tags = append([]string{}, e.Tags...)
	f.entries = append(f.entries, stored)
	return nil
}

func (f *fakeEntryRepo) GetForOwner(_ context.Context, ownerID, id string) (*model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, e := range f.entries {
		if e.ID == id && e.OwnerID == ownerID {
			found := e
			return &found, nil
		}
	}
	return nil, apperror.NotFound("entry", id)
}

func (f *fakeEntryRepo) ListForOwner(_ context.Context, ownerID string, filter query.Filter) ([]model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []model.Entry{}
	for _, e := range f.entries {
		if e.OwnerID == ownerID && filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeEntryRepo) Update(_ context.Context, e *model.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].ID == e.ID && f.entries[i].OwnerID == e.OwnerID {
			f.entries[i].Title = e.Title
			f.entries[i].Content = e.Content
			f.entries[i].Tags = append([]string{}, e.Tags...)
			f.entries[i].UpdatedAt = f.now().UTC().Truncate(query.Resolution)
			e.CreatedAt = f.entries[i].CreatedAt
			e.UpdatedAt = f.entries[i].UpdatedAt
			return nil
		}
	}
	return apperror.NotFound("entry", e.ID)
}

func (f *fakeEntryRepo) DeleteForOwner(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id && e.OwnerID == ownerID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return apperror.NotFound("entry", id)
}

type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	byEmail map[string]*model.User
	byGHID  map[int64]*model.User
	nextID  int

	getErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
		byGHID:  make(map[int64]*model.User),
	}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.byEmail[u.Email]; taken {
		return apperror.DuplicateUser(u.Email)
	}
	if _, taken := f.byGHID[u.GitHubID]; u.GitHubID != 0 && taken {
		return apperror.DuplicateUser(u.Email)
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	stored := *u
	f.byID[u.ID] = &stored
	f.byEmail[u.Email] = &stored
	if u.GitHubID != 0 {
		f.byGHID[u.GitHubID] = &stored
	}
	return nil
}

func (f *fakeUserRepo) lookup(u *model.User, ok bool, key string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if !ok {
		return nil, apperror.NotFound("user", key)
	}
	found := *u
	return &found, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	return f.lookup(u, ok, id)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	return f.lookup(u, ok, email)
}

func (f *fakeUserRepo) GetUserByGitHubID(_ context.Context, id int64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byGHID[id]
	return f.lookup(u, ok, fmt.Sprint(id))
}

// countingRecorder records events so tests can assert on metrics calls.
type countingRecorder struct {
	mu    sync.Mutex
	auth  map[string]int
	entry map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{auth: map[string]int{}, entry: map[string]int{}}
}

func (r *countingRecorder) AuthEvent(event, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth[event+"/"+outcome]++
}

func (r *countingRecorder) EntryOp(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry[op]++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
