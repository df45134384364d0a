package verifycode

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"huozhong/cmd/identity"
)

// Record is one stored code.
type Record struct {
	Email    string
	Code     string
	ExpireAt time.Time
}

type line struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	ExpireAt string `json:"expire_at"`
}

// FileStore is a JSONL-backed code store.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time

	// lapsed holds emails whose codes expired and were compacted away by
	// any read, so Verify can still tell expired from absent.
	lapsed map[string]struct{}
}

// Option configures a FileStore.
type Option func(*FileStore)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewFileStore opens (creating the parent directory if needed) the code log at path.
func NewFileStore(path string, opts ...Option) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("verifycode: empty path")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("verifycode: %w", err)
		}
	}
	s := &FileStore{
		path:   path,
		now:    time.Now,
		lapsed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Set appends a code for email valid for ttl.
func (s *FileStore) Set(email, code string, ttl time.Duration) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" || ttl <= 0 {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lapsed, email)
	raw, err := encodeLine(Record{Email: email, Code: code, ExpireAt: s.now().Add(ttl)})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("verifycode: open: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return fmt.Errorf("verifycode: append: %w", err)
	}
	return f.Close()
}

// Get returns the current code for email. When several unexpired records
// exist the most recently appended wins.
func (s *FileStore) Get(email string) (string, bool, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.compactLocked()
	if err != nil {
		return "", false, err
	}
	rec, ok := latest(live, email)
	return rec.Code, ok, nil
}

// Delete removes every record for email.
func (s *FileStore) Delete(email string) error {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.compactLocked()
	if err != nil {
		return err
	}
	delete(s.lapsed, email)
	return s.removeLocked(live, email)
}

// Verify checks submitted against the current code for email and consumes
// it on success.
//
// Errors: ErrCodeExpired when the email's last code lapsed (whichever read
// compacted it), ErrCodeAbsent when no code is known, ErrCodeMismatch
// otherwise. The expired mark is reported once and is process-local: after
// a restart a code compacted before the restart reads as absent.
func (s *FileStore) Verify(email, submitted string) error {
	email = normalizeEmail(email)
	submitted = strings.TrimSpace(submitted)

	s.mu.Lock()
	defer s.mu.Unlock()

	live, err := s.compactLocked()
	if err != nil {
		return err
	}
	rec, ok := latest(live, email)
	if !ok {
		if _, seen := s.lapsed[email]; seen {
			delete(s.lapsed, email)
			return ErrCodeExpired
		}
		return ErrCodeAbsent
	}
	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(submitted)) != 1 {
		return ErrCodeMismatch
	}
	delete(s.lapsed, email)
	return s.removeLocked(live, email)
}

// List returns every unexpired record, compacting the log as a side effect.
func (s *FileStore) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.compactLocked()
}

// compactLocked reads the log, drops expired and malformed lines, rewrites
// the file when anything was dropped, and returns the survivors in file
// order. Emails of dropped expired records are marked lapsed.
func (s *FileStore) compactLocked() ([]Record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verifycode: read: %w", err)
	}

	now := s.now()
	var (
		live    []Record
		dropped bool
	)
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			dropped = true
			continue
		}
		rec, ok := decodeLine(text)
		if !ok {
			dropped = true
			continue
		}
		if !rec.ExpireAt.After(now) {
			s.lapsed[rec.Email] = struct{}{}
			dropped = true
			continue
		}
		live = append(live, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("verifycode: scan: %w", err)
	}

	if dropped {
		if err := s.rewriteLocked(live); err != nil {
			return nil, err
		}
	}
	return live, nil
}

func (s *FileStore) removeLocked(live []Record, email string) error {
	kept := live[:0:0]
	for _, r := range live {
		if r.Email != email {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(live) {
		return nil
	}
	return s.rewriteLocked(kept)
}

// rewriteLocked replaces the log atomically via a temp file and rename.
func (s *FileStore) rewriteLocked(recs []Record) error {
	var buf bytes.Buffer
	for _, r := range recs {
		raw, err := encodeLine(r)
		if err != nil {
			return err
		}
		buf.Write(raw)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("verifycode: rewrite: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("verifycode: rewrite: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("verifycode: rewrite: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("verifycode: rewrite: %w", err)
	}
	return nil
}

func latest(recs []Record, email string) (Record, bool) {
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Email == email {
			return recs[i], true
		}
	}
	return Record{}, false
}

func encodeLine(r Record) ([]byte, error) {
	raw, err := json.Marshal(line{
		Email:    r.Email,
		Code:     r.Code,
		ExpireAt: r.ExpireAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("verifycode: encode: %w", err)
	}
	return append(raw, '\n'), nil
}

func decodeLine(b []byte) (Record, bool) {
	var l line
	if err := json.Unmarshal(b, &l); err != nil {
		return Record{}, false
	}
	email := normalizeEmail(l.Email)
	if email == "" || l.Code == "" {
		return Record{}, false
	}
	at, ok := parseExpireAt(l.ExpireAt)
	if !ok {
		return Record{}, false
	}
	return Record{Email: email, Code: l.Code, ExpireAt: at}, true
}

// Older writers emitted naive timestamps; those are read as UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

func parseExpireAt(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if at, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return at, true
	}
	if at, err := time.ParseInLocation(naiveLayout, raw, time.UTC); err == nil {
		return at, true
	}
	return time.Time{}, false
}

func normalizeEmail(s string) string {
	return identity.NormalizeEmail(s)
}
