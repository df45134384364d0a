package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL. The pool is owned by the
// caller and is never closed here.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "huozhong").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "huozhong",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const identityColumns = `id, name, role, credential_hash, email, created_at, updated_at`

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Identity, error) {
	const op = "identity.GetByID"

	id = NormalizeID(id)
	if id == "" {
		return Identity{}, NotFoundError{Op: op, Key: "id"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+s.table()+` WHERE id = $1`, id)
	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, NotFoundError{Op: op, Key: "id"}
	}
	return out, err
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	const op = "identity.GetByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return Identity{}, NotFoundError{Op: op, Key: "email"}
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+s.table()+`
		  WHERE email_norm = $1
		  ORDER BY id
		  LIMIT 1`, norm)
	out, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, NotFoundError{Op: op, Key: "email"}
	}
	return out, err
}

func (s *PostgresStore) Create(ctx context.Context, in Identity) error {
	const op = "identity.Create"

	in.ID = NormalizeID(in.ID)
	if in.ID == "" {
		return invalid(op, "missing id")
	}
	role, ok := ParseRole(string(in.Role))
	if !ok {
		return invalid(op, "unknown role")
	}

	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+s.table()+` (
		     id, name, role, credential_hash, email, email_norm, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		in.ID, strings.TrimSpace(in.Name), string(role), in.CredentialHash,
		strings.TrimSpace(in.Email), NormalizeEmail(in.Email), now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return ConflictError{Op: op, Field: field}
		}
		return err
	}
	return nil
}

func (s *PostgresStore) SetCredentialHash(ctx context.Context, id, hash string) error {
	const op = "identity.SetCredentialHash"

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET credential_hash = $2, updated_at = now() WHERE id = $1`,
		NormalizeID(id), hash)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Key: "id"}
	}
	return nil
}

func (s *PostgresStore) SetCredentialHashIfUnset(ctx context.Context, id, hash string) error {
	const op = "identity.SetCredentialHashIfUnset"

	id = NormalizeID(id)
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET credential_hash = $2, updated_at = now()
		  WHERE id = $1 AND btrim(credential_hash) = ''`,
		id, hash)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+s.table()+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return NotFoundError{Op: op, Key: "id"}
	}
	return ConflictError{Op: op, Field: "credential"}
}

func (s *PostgresStore) SetRole(ctx context.Context, id string, role Role) error {
	const op = "identity.SetRole"

	r, ok := ParseRole(string(role))
	if !ok {
		return invalid(op, "unknown role")
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+` SET role = $2, updated_at = now() WHERE id = $1`,
		NormalizeID(id), string(r))
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Key: "id"}
	}
	return nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (Identity, error) {
	const op = "identity.UpdateProfile"

	var (
		name, email, emailNorm, role *string
	)
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		name = &v
	}
	if in.Email != nil {
		v := strings.TrimSpace(*in.Email)
		n := NormalizeEmail(v)
		email, emailNorm = &v, &n
	}
	if in.Role != nil {
		r, ok := ParseRole(string(*in.Role))
		if !ok {
			return Identity{}, invalid(op, "unknown role")
		}
		v := string(r)
		role = &v
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET name = COALESCE($2, name),
		        email = COALESCE($3, email),
		        email_norm = COALESCE($4, email_norm),
		        role = COALESCE($5, role),
		        updated_at = now()
		  WHERE id = $1
		RETURNING `+identityColumns,
		NormalizeID(id), name, email, emailNorm, role)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Key: "id"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, err
	}
	return out, nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "identities"}.Sanitize()
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		out  Identity
		role string
	)
	if err := row.Scan(&out.ID, &out.Name, &role, &out.CredentialHash, &out.Email, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return Identity{}, err
	}
	out.Role = Role(role)
	return out, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "identities_pkey":
		return "id", true
	case strings.Contains(c, "email"):
		return "email", true
	default:
		return "unique", true
	}
}
