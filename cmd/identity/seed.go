package identity

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk shape of HZ_IDENTITY_SEED_FILE.
type seedFile struct {
	Identities []seedIdentity `yaml:"identities"`
}

type seedIdentity struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Role           string `yaml:"role"`
	Email          string `yaml:"email"`
	CredentialHash string `yaml:"credential_hash"`
}

// LoadSeedFile parses a YAML identity roster. It is used to populate the
// in-memory store in development, where the roster would otherwise live in the
// external identity database.
func LoadSeedFile(path string) ([]Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity seed: %w", err)
	}
	return parseSeed(raw)
}

func parseSeed(raw []byte) ([]Identity, error) {
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("identity seed: %w", err)
	}

	out := make([]Identity, 0, len(f.Identities))
	for i, s := range f.Identities {
		role, ok := ParseRole(s.Role)
		if !ok {
			return nil, fmt.Errorf("identity seed: entry %d: unknown role %q", i, s.Role)
		}
		id := NormalizeID(s.ID)
		if id == "" {
			return nil, fmt.Errorf("identity seed: entry %d: missing id", i)
		}
		out = append(out, Identity{
			ID:             id,
			Name:           s.Name,
			Role:           role,
			Email:          s.Email,
			CredentialHash: s.CredentialHash,
		})
	}
	return out, nil
}

// Seed inserts identities, skipping ones that already exist.
func Seed(ctx context.Context, st Store, ids []Identity) (created int, err error) {
	for _, in := range ids {
		if err := st.Create(ctx, in); err != nil {
			if IsConflict(err) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
