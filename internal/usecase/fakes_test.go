package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/infra/security"
	"github.com/arklim/ratings-auth/internal/repository"
)

var errStoreDown = errors.New("connection refused")

type fakePrincipalRepo struct {
	mu          sync.Mutex
	byEmail     map[string]domain.Principal
	createCalls int
	createErr   error
	getErr      error
	// beforeCreate lets tests slip in a competing insert.
	beforeCreate func(p domain.Principal)
}

func newFakePrincipalRepo(principals ...domain.Principal) *fakePrincipalRepo {
	repo := &fakePrincipalRepo{byEmail: make(map[string]domain.Principal)}
	for _, p := range principals {
		repo.byEmail[p.Email] = p
	}
	return repo
}

func (r *fakePrincipalRepo) Create(_ context.Context, p domain.Principal) error {
	if r.beforeCreate != nil {
		r.beforeCreate(p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	if _, exists := r.byEmail[p.Email]; exists {
		return repository.ErrConflict
	}
	r.byEmail[p.Email] = p
	return nil
}

func (r *fakePrincipalRepo) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	for _, p := range r.byEmail {
		if p.ID == id {
			copy := p
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePrincipalRepo) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	if p, ok := r.byEmail[email]; ok {
		copy := p
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakePrincipalRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byEmail)
}

// fakeCodeRepo mirrors the conditional update: the check and the flip happen under one lock.
type fakeCodeRepo struct {
	mu           sync.Mutex
	codes        []domain.VerificationCode
	createErr    error
	consumeErr   error
	consumeCalls int
}

func (r *fakeCodeRepo) Create(_ context.Context, code domain.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.codes = append(r.codes, code)
	return nil
}

func (r *fakeCodeRepo) Consume(_ context.Context, email string, purpose domain.CodePurpose, code string, at time.Time) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumeCalls++
	if r.consumeErr != nil {
		return nil, r.consumeErr
	}

	candidates := make([]int, 0, len(r.codes))
	for i, c := range r.codes {
		if c.Email == email && c.Purpose == purpose && c.Code == code && !c.Used && !c.Expired(at) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Slice(candidates, func(a, b int) bool {
		return r.codes[candidates[a]].CreatedAt.After(r.codes[candidates[b]].CreatedAt)
	})

	idx := candidates[0]
	usedAt := at
	r.codes[idx].Used = true
	r.codes[idx].UsedAt = &usedAt
	consumed := r.codes[idx]
	return &consumed, nil
}

func (r *fakeCodeRepo) evaluations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.consumeCalls
}

func (r *fakeCodeRepo) latest() domain.VerificationCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.codes[len(r.codes)-1]
}

type fakeAuditRepo struct {
	mu        sync.Mutex
	entries   []domain.LoginAuditEntry
	appendErr error
	listErr   error
	lastLimit int
}

func (r *fakeAuditRepo) Append(_ context.Context, entry domain.LoginAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) ListRecent(_ context.Context, limit int) ([]domain.LoginAuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastLimit = limit
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.LoginAuditEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *fakeAuditRepo) snapshot() []domain.LoginAuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LoginAuditEntry(nil), r.entries...)
}

type fakeEvents struct {
	mu        sync.Mutex
	succeeded []domain.LoginSucceededEvent
	failed    []domain.LoginFailedEvent
	created   []domain.PrincipalCreatedEvent
	codes     []domain.EmailCodeRequestedEvent
	err       error
}

func (e *fakeEvents) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.succeeded = append(e.succeeded, event)
	return e.err
}

func (e *fakeEvents) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, event)
	return e.err
}

func (e *fakeEvents) PublishPrincipalCreated(_ context.Context, event domain.PrincipalCreatedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, event)
	return e.err
}

func (e *fakeEvents) PublishEmailCodeRequested(_ context.Context, event domain.EmailCodeRequestedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, event)
	return e.err
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	err      error
	resets   int
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string][]time.Time)}
}

func (s *fakeAttemptStore) TrimWindow(_ context.Context, key string, window time.Duration, ref time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	kept := s.attempts[key][:0]
	for _, at := range s.attempts[key] {
		if !at.Before(ref.Add(-window)) {
			kept = append(kept, at)
		}
	}
	s.attempts[key] = kept
	return nil
}

func (s *fakeAttemptStore) CountAttempts(_ context.Context, key string, window time.Duration, ref time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	count := 0
	for _, at := range s.attempts[key] {
		if !at.Before(ref.Add(-window)) && !at.After(ref) {
			count++
		}
	}
	return count, nil
}

func (s *fakeAttemptStore) RecordAttempt(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.attempts[key] = append(s.attempts[key], at)
	return nil
}

func (s *fakeAttemptStore) ReserveAttempt(_ context.Context, key string, limit int, window time.Duration, at time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, false, s.err
	}
	kept := s.attempts[key][:0]
	for _, t := range s.attempts[key] {
		if !t.Before(at.Add(-window)) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		s.attempts[key] = kept
		return len(kept), false, nil
	}
	s.attempts[key] = append(kept, at)
	return len(kept) + 1, true, nil
}

func (s *fakeAttemptStore) OldestAttempt(_ context.Context, key string, window time.Duration, ref time.Time) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return time.Time{}, false, s.err
	}
	var oldest time.Time
	found := false
	for _, at := range s.attempts[key] {
		if at.Before(ref.Add(-window)) {
			continue
		}
		if !found || at.Before(oldest) {
			oldest, found = at, true
		}
	}
	return oldest, found, nil
}

func (s *fakeAttemptStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	delete(s.attempts, key)
	return s.err
}

type fakeSender struct {
	mu       sync.Mutex
	messages []port.EmailCodeMessage
	err      error
}

func (s *fakeSender) SendEmailCode(_ context.Context, msg port.EmailCodeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

const (
	testJWTSecret = "jwt-test-secret"
	testSSOSecret = "sso-test-secret"
)

func newTestTokens(t *testing.T, now func() time.Time) *security.SessionTokenService {
	t.Helper()
	tokens, err := security.NewSessionTokenService(testJWTSecret, security.DefaultSessionTTL, "ratings-auth-test")
	if err != nil {
		t.Fatalf("NewSessionTokenService returned error: %v", err)
	}
	return tokens.WithClock(now)
}

func newTestHasher(t *testing.T) *security.PasswordHasher {
	t.Helper()
	cfg := security.DefaultArgon2Config()
	cfg.Iterations = 1
	cfg.Memory = 8 * 1024
	hasher, err := security.NewPasswordHasher(cfg)
	if err != nil {
		t.Fatalf("NewPasswordHasher returned error: %v", err)
	}
	return hasher
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}
