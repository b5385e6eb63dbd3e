// Package auth authenticates dashboard users against htpasswd-style
// files: one for admins, one for upload-only accounts. Files are parsed
// once and hot-reloaded when they change on disk.
package auth

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/bcrypt"
)

// Role is the privilege level granted by the file a user appears in.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleUploader Role = "uploader"
)

// CanUpload reports whether the role may import data.
func (r Role) CanUpload() bool {
	return r == RoleAdmin || r == RoleUploader
}

// Service verifies credentials against the two user files. Lookups hit
// an in-memory copy guarded by a RWMutex; a watcher goroutine reloads the
// copy when either file changes.
type Service struct {
	adminPath    string
	uploaderPath string

	mu        sync.RWMutex
	admins    map[string]string
	uploaders map[string]string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewService loads both user files. Missing files are not errors: they
// simply authenticate nobody until they appear.
func NewService(adminPath, uploaderPath string) *Service {
	s := &Service{
		adminPath:    adminPath,
		uploaderPath: uploaderPath,
		done:         make(chan struct{}),
	}
	s.Reload()
	return s
}

// Reload re-reads both user files.
func (s *Service) Reload() {
	admins := loadUserFile(s.adminPath)
	uploaders := loadUserFile(s.uploaderPath)

	s.mu.Lock()
	s.admins = admins
	s.uploaders = uploaders
	s.mu.Unlock()

	log.Printf("[Auth] Loaded %d admin and %d uploader accounts", len(admins), len(uploaders))
}

// Watch starts a goroutine that reloads the user files when they change.
// The parent directories are watched so atomic replaces (write to temp,
// rename over) are caught too.
func (s *Service) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	s.watcher = watcher

	dirs := map[string]bool{}
	for _, p := range []string{s.adminPath, s.uploaderPath} {
		dir := filepath.Dir(p)
		if dirs[dir] {
			continue
		}
		dirs[dir] = true
		if err := watcher.Add(dir); err != nil {
			log.Printf("[Auth] Cannot watch %s: %v", dir, err)
		}
	}

	go func() {
		for {
			select {
			case <-s.done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name == s.adminPath || event.Name == s.uploaderPath {
					log.Printf("[Auth] %s changed, reloading users", event.Name)
					s.Reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Auth] Watcher error: %v", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher goroutine.
func (s *Service) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

// Authenticate resolves credentials to a role. Admin membership wins
// when a user appears in both files.
func (s *Service) Authenticate(username, password string) (Role, bool) {
	s.mu.RLock()
	adminHash, isAdmin := s.admins[username]
	uploaderHash, isUploader := s.uploaders[username]
	s.mu.RUnlock()

	if isAdmin && VerifyPassword(password, adminHash) {
		return RoleAdmin, true
	}
	if isUploader && VerifyPassword(password, uploaderHash) {
		return RoleUploader, true
	}
	return "", false
}

// VerifyPassword checks a password against an htpasswd hash entry.
// Bcrypt is the supported format; Apache MD5 is rejected outright and a
// bare string falls back to a plain-text compare with a warning.
func VerifyPassword(password, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$2y$"), strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	case strings.HasPrefix(hash, "$apr1$"):
		log.Printf("[Auth] Apache MD5 hashes are not supported, recreate the file with htpasswd -B")
		return false
	default:
		log.Printf("[Auth] Plain text password entry in use, switch to bcrypt hashes")
		return password == hash
	}
}

// ParseBasicAuth decodes an HTTP Basic Authorization header value.
func ParseBasicAuth(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(decoded), ":")
	if !ok || username == "" {
		return "", "", false
	}
	return username, password, true
}

func loadUserFile(path string) map[string]string {
	users := map[string]string{}
	if path == "" {
		return users
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Auth] Error reading %s: %v", path, err)
		}
		return users
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		username, hash, ok := strings.Cut(line, ":")
		if !ok || username == "" || hash == "" {
			continue
		}
		users[username] = hash
	}
	return users
}
