package auth

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Account pairs a username with the role its file grants.
type Account struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// Mutation errors surfaced to the management endpoints.
var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
	ErrLastAdmin    = errors.New("cannot remove the last admin user")
)

// ListAccounts returns every account from both files sorted by username.
// A name present in both files is reported once, as admin, matching how
// Authenticate resolves it.
func (s *Service) ListAccounts() []Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]Account, 0, len(s.admins)+len(s.uploaders))
	for username := range s.admins {
		accounts = append(accounts, Account{Username: username, Role: RoleAdmin})
	}
	for username := range s.uploaders {
		if _, ok := s.admins[username]; ok {
			continue
		}
		accounts = append(accounts, Account{Username: username, Role: RoleUploader})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Username < accounts[j].Username })
	return accounts
}

// LookupAccount resolves a username to its account, admin file winning.
func (s *Service) LookupAccount(username string) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roleOf(username)
	if !ok {
		return Account{}, false
	}
	return Account{Username: username, Role: role}, true
}

// CreateAccount hashes the password and adds the user to the file for the
// role. The in-memory copy is updated immediately so the account works
// without waiting for the file watcher.
func (s *Service) CreateAccount(username, password string, role Role) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roleOf(username); ok {
		return ErrUserExists
	}
	s.fileFor(role)[username] = hash
	if err := s.persistLocked(); err != nil {
		return err
	}
	log.Printf("[Auth] Created %s account %q", role, username)
	return nil
}

// UpdateAccount changes an account's password, role, or both. Empty
// values keep the current setting; a role change moves the stored hash
// between files.
func (s *Service) UpdateAccount(username, password string, role Role) error {
	var hash string
	if password != "" {
		h, err := HashPassword(password)
		if err != nil {
			return err
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.roleOf(username)
	if !ok {
		return ErrUserNotFound
	}
	target := current
	if role != "" {
		target = role
	}
	if hash == "" {
		hash = s.fileFor(current)[username]
	}

	delete(s.fileFor(current), username)
	s.fileFor(target)[username] = hash
	if err := s.persistLocked(); err != nil {
		return err
	}
	log.Printf("[Auth] Updated account %q (role %s)", username, target)
	return nil
}

// DeleteAccount removes a user from the file of its effective role. The
// last admin account cannot be removed.
func (s *Service) DeleteAccount(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	role, ok := s.roleOf(username)
	if !ok {
		return ErrUserNotFound
	}
	if role == RoleAdmin && len(s.admins) <= 1 {
		return ErrLastAdmin
	}
	delete(s.fileFor(role), username)
	if err := s.persistLocked(); err != nil {
		return err
	}
	log.Printf("[Auth] Deleted %s account %q", role, username)
	return nil
}

// HashPassword bcrypt-hashes a password for storage in a user file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// roleOf must be called with mu held.
func (s *Service) roleOf(username string) (Role, bool) {
	if _, ok := s.admins[username]; ok {
		return RoleAdmin, true
	}
	if _, ok := s.uploaders[username]; ok {
		return RoleUploader, true
	}
	return "", false
}

// fileFor must be called with mu held.
func (s *Service) fileFor(role Role) map[string]string {
	if role == RoleAdmin {
		return s.admins
	}
	return s.uploaders
}

// persistLocked writes both user files back to disk. Callers hold mu. A
// failed write leaves the in-memory copy ahead of disk; the next reload
// reconciles from whatever was saved.
func (s *Service) persistLocked() error {
	if err := saveUserFile(s.adminPath, s.admins); err != nil {
		return err
	}
	return saveUserFile(s.uploaderPath, s.uploaders)
}

func saveUserFile(path string, users map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create user file directory: %w", err)
	}

	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(users[name])
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}
