package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/rolesim/internal/domain"
)

type fakeTrainees struct {
	mu       sync.Mutex
	trainees map[string]*domain.Trainee
	touched  int
}

func (f *fakeTrainees) GetTrainee(_ context.Context, id string) (*domain.Trainee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trainees[id]
	if !ok {
		return nil, nil
	}
	c := *t
	return &c, nil
}

func (f *fakeTrainees) UpsertTrainee(_ context.Context, t *domain.Trainee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *t
	f.trainees[t.TraineeID] = &c
	return nil
}

func (f *fakeTrainees) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	f.trainees[id].LastSeenAt = at
	return nil
}

func TestMiddlewareIssuesCookieAndCreatesTrainee(t *testing.T) {
	repo := &fakeTrainees{trainees: map[string]*domain.Trainee{}}
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraineeIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	if !isValidAnonID(seen) {
		t.Fatalf("trainee id %q is not a valid anonymous id", seen)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != seen {
		t.Fatalf("expected cookie carrying %q, got %+v", seen, cookies)
	}
	if _, ok := repo.trainees[seen]; !ok {
		t.Fatal("trainee record not created")
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	id := "anon_0123456789abcdef0123456789abcdef"
	repo := &fakeTrainees{trainees: map[string]*domain.Trainee{
		id: {TraineeID: id, LastSeenAt: time.Now().Add(-time.Hour)},
	}}
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraineeIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != id {
		t.Fatalf("trainee id = %q, want %q", seen, id)
	}
	if repo.touched != 1 {
		t.Fatalf("last seen updates = %d, want 1", repo.touched)
	}
}

func TestMiddlewareRejectsForgedCookie(t *testing.T) {
	repo := &fakeTrainees{trainees: map[string]*domain.Trainee{}}
	var seen string
	h := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraineeIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "../../admin"})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen == "../../admin" || !isValidAnonID(seen) {
		t.Fatalf("forged cookie accepted: %q", seen)
	}
}

func TestDeriveDisplayName(t *testing.T) {
	if got := deriveDisplayName("anon_0123456789abcdef0123456789abcdef"); got != "trainee-89abcdef" {
		t.Errorf("deriveDisplayName() = %q", got)
	}
	if got := deriveDisplayName("short"); got != "trainee" {
		t.Errorf("deriveDisplayName(short) = %q", got)
	}
}
