package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no database is configured.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Identity
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]Identity),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Identity, error) {
	const op = "identity.GetByID"
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out, ok := s.byID[NormalizeID(id)]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Key: "id"}
	}
	return out, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	const op = "identity.GetByEmail"
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	norm := NormalizeEmail(email)
	if norm == "" {
		return Identity{}, NotFoundError{Op: op, Key: "email"}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Deterministic pick when legacy data holds duplicate emails.
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if NormalizeEmail(s.byID[id].Email) == norm {
			return s.byID[id], nil
		}
	}
	return Identity{}, NotFoundError{Op: op, Key: "email"}
}

func (s *MemoryStore) Create(ctx context.Context, in Identity) error {
	const op = "identity.Create"
	if err := ctx.Err(); err != nil {
		return err
	}
	in.ID = NormalizeID(in.ID)
	if in.ID == "" {
		return invalid(op, "missing id")
	}
	role, ok := ParseRole(string(in.Role))
	if !ok {
		return invalid(op, "unknown role")
	}
	in.Role = role
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[in.ID]; exists {
		return ConflictError{Op: op, Field: "id"}
	}
	if s.emailTakenLocked(in.Email, in.ID) {
		return ConflictError{Op: op, Field: "email"}
	}

	now := s.now()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = now
	}
	in.UpdatedAt = now
	s.byID[in.ID] = in
	return nil
}

func (s *MemoryStore) SetCredentialHash(ctx context.Context, id, hash string) error {
	return s.mutate(ctx, "identity.SetCredentialHash", id, func(i *Identity) error {
		i.CredentialHash = hash
		return nil
	})
}

func (s *MemoryStore) SetCredentialHashIfUnset(ctx context.Context, id, hash string) error {
	const op = "identity.SetCredentialHashIfUnset"
	return s.mutate(ctx, op, id, func(i *Identity) error {
		if i.HasCredential() {
			return ConflictError{Op: op, Field: "credential"}
		}
		i.CredentialHash = hash
		return nil
	})
}

func (s *MemoryStore) SetRole(ctx context.Context, id string, role Role) error {
	const op = "identity.SetRole"
	r, ok := ParseRole(string(role))
	if !ok {
		return invalid(op, "unknown role")
	}
	return s.mutate(ctx, op, id, func(i *Identity) error {
		i.Role = r
		return nil
	})
}

func (s *MemoryStore) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (Identity, error) {
	const op = "identity.UpdateProfile"
	var out Identity
	err := s.mutate(ctx, op, id, func(i *Identity) error {
		if in.Role != nil {
			r, ok := ParseRole(string(*in.Role))
			if !ok {
				return invalid(op, "unknown role")
			}
			in.Role = &r
		}
		if in.Email != nil && s.emailTakenLocked(*in.Email, i.ID) {
			return ConflictError{Op: op, Field: "email"}
		}
		applyProfileUpdate(i, in)
		out = *i
		return nil
	})
	return out, err
}

func (s *MemoryStore) mutate(ctx context.Context, op, id string, fn func(*Identity) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id = NormalizeID(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Key: "id"}
	}
	if err := fn(&cur); err != nil {
		return err
	}
	cur.UpdatedAt = s.now()
	s.byID[id] = cur
	return nil
}

func (s *MemoryStore) emailTakenLocked(email, exceptID string) bool {
	norm := NormalizeEmail(email)
	if norm == "" {
		return false
	}
	for id, other := range s.byID {
		if id != exceptID && NormalizeEmail(other.Email) == norm {
			return true
		}
	}
	return false
}

func applyProfileUpdate(i *Identity, in ProfileUpdate) {
	if in.Name != nil {
		i.Name = strings.TrimSpace(*in.Name)
	}
	if in.Email != nil {
		i.Email = strings.TrimSpace(*in.Email)
	}
	if in.Role != nil {
		i.Role = *in.Role
	}
}
