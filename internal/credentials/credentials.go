// ABOUTME: In-memory credential store seeded from a TOML file at startup
// ABOUTME: Validates login attempts by exact username/password match

package credentials

import (
	"fmt"
	"log/slog"

	"github.com/BurntSushi/toml"
)

// Credential is one username/password record.
//
// Passwords are compared in plaintext. This mirrors the demo contract and is
// a known weakness: there is deliberately no hashing here, because hashing
// would break every pre-seeded credential file.
type Credential struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// fileSchema is the on-disk layout of a credentials file.
type fileSchema struct {
	Users []Credential `toml:"users"`
}

// Store holds the credential records. It is populated once at startup and
// read-only afterwards, so it is safe for concurrent use without locking.
type Store struct {
	users  []Credential
	logger *slog.Logger
}

// NewStore creates a store over the given records.
func NewStore(users []Credential) *Store {
	return &Store{
		users:  users,
		logger: slog.Default().With("component", "credentials"),
	}
}

// LoadFile reads a TOML credentials file and returns a store over its records.
func LoadFile(path string) (*Store, error) {
	var f fileSchema
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}
	if len(f.Users) == 0 {
		return nil, fmt.Errorf("credentials file %s contains no users", path)
	}
	return NewStore(f.Users), nil
}

// DefaultStore returns a store with the demo seed user. Used when no
// credentials file is configured.
func DefaultStore() *Store {
	return NewStore([]Credential{{Username: "user123", Password: "pass123"}})
}

// Check reports whether the username/password pair matches a stored record.
// Both fields must match exactly.
func (s *Store) Check(username, password string) bool {
	for _, u := range s.users {
		if u.Username == username && u.Password == password {
			return true
		}
	}
	return false
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	return len(s.users)
}
