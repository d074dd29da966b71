// Package memory provides in-process repositories with the same contracts as
// the PostgreSQL ones. They back transport-level tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arklim/ratings-auth/internal/core/domain"
	"github.com/arklim/ratings-auth/internal/core/port"
	"github.com/arklim/ratings-auth/internal/repository"
)

// PrincipalRepository stores principals keyed by id with a unique email index.
type PrincipalRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.Principal
	byEmail map[string]string
}

// NewPrincipalRepository seeds the repository with principals.
func NewPrincipalRepository(seed ...domain.Principal) *PrincipalRepository {
	r := &PrincipalRepository{
		byID:    make(map[string]domain.Principal),
		byEmail: make(map[string]string),
	}
	for _, p := range seed {
		_ = r.Create(context.Background(), p)
	}
	return r
}

func (r *PrincipalRepository) Create(_ context.Context, p domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(p.Email)
	if _, taken := r.byEmail[email]; taken {
		return repository.ErrConflict
	}
	if _, taken := r.byID[p.ID]; taken {
		return repository.ErrConflict
	}
	r.byID[p.ID] = p
	r.byEmail[email] = p.ID
	return nil
}

func (r *PrincipalRepository) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *PrincipalRepository) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p := r.byID[id]
	return &p, nil
}

// Len reports the number of stored principals.
func (r *PrincipalRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// VerificationCodeRepository keeps codes in insertion order.
type VerificationCodeRepository struct {
	mu    sync.Mutex
	codes []domain.VerificationCode
}

func NewVerificationCodeRepository() *VerificationCodeRepository {
	return &VerificationCodeRepository{}
}

func (r *VerificationCodeRepository) Create(_ context.Context, code domain.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	return nil
}

// Consume marks the newest matching unused, unexpired code as used under the lock.
func (r *VerificationCodeRepository) Consume(_ context.Context, email string, purpose domain.CodePurpose, code string, at time.Time) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	newest := -1
	for i, c := range r.codes {
		if c.Email != email || c.Purpose != purpose || c.Code != code || c.Used || c.Expired(at) {
			continue
		}
		if newest < 0 || c.CreatedAt.After(r.codes[newest].CreatedAt) {
			newest = i
		}
	}
	if newest < 0 {
		return nil, repository.ErrNotFound
	}

	usedAt := at
	r.codes[newest].Used = true
	r.codes[newest].UsedAt = &usedAt
	consumed := r.codes[newest]
	return &consumed, nil
}

// LoginAuditRepository is an append-only list of audit entries.
type LoginAuditRepository struct {
	mu      sync.Mutex
	entries []domain.LoginAuditEntry
}

func NewLoginAuditRepository() *LoginAuditRepository {
	return &LoginAuditRepository{}
}

func (r *LoginAuditRepository) Append(_ context.Context, entry domain.LoginAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *LoginAuditRepository) ListRecent(_ context.Context, limit int) ([]domain.LoginAuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.LoginAuditEntry, len(r.entries))
	copy(out, r.entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Entries returns a copy of every entry in append order.
func (r *LoginAuditRepository) Entries() []domain.LoginAuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.LoginAuditEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

var (
	_ port.PrincipalRepository        = (*PrincipalRepository)(nil)
	_ port.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
	_ port.LoginAuditRepository       = (*LoginAuditRepository)(nil)
)
