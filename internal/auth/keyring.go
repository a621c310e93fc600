package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	serviceName     = "preorder"
	credentialsFile = "credentials.json"
)

// ErrNoSession is returned when no session is stored for an origin.
var ErrNoSession = errors.New("no stored session")

// Session is the persisted login state for one backend origin.
type Session struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	User         json.RawMessage `json:"user,omitempty"`
}

// Complete reports whether every part of a login is present.
func (s *Session) Complete() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != "" && len(s.User) > 0 && string(s.User) != "null"
}

// Store handles session storage, preferring the system keychain.
type Store struct {
	useKeyring  bool
	fallbackDir string
}

// NewStore creates a session store.
func NewStore(fallbackDir string) *Store {
	// Skip keyring for tests or when explicitly disabled
	if os.Getenv("PREORDER_NO_KEYRING") != "" {
		return &Store{useKeyring: false, fallbackDir: fallbackDir}
	}

	testKey := key("probe")
	if err := keyring.Set(serviceName, testKey, "probe"); err == nil {
		_ = keyring.Delete(serviceName, testKey)
		return &Store{useKeyring: true, fallbackDir: fallbackDir}
	}
	fmt.Fprintf(os.Stderr, "warning: system keyring unavailable, session stored in plaintext at %s\n",
		filepath.Join(fallbackDir, credentialsFile))
	return &Store{useKeyring: false, fallbackDir: fallbackDir}
}

func key(origin string) string {
	return "preorder::" + origin
}

// Load retrieves the session for origin. It returns ErrNoSession when none is stored.
func (s *Store) Load(origin string) (*Session, error) {
	if s.useKeyring {
		return s.loadFromKeyring(origin)
	}
	return s.loadFromFile(origin)
}

// Save stores the session for origin.
func (s *Store) Save(origin string, sess *Session) error {
	if s.useKeyring {
		return s.saveToKeyring(origin, sess)
	}
	return s.saveToFile(origin, sess)
}

// Delete removes the session for origin. Deleting a missing session is not an error.
func (s *Store) Delete(origin string) error {
	if s.useKeyring {
		err := keyring.Delete(serviceName, key(origin))
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.deleteFromFile(origin)
}

func (s *Store) loadFromKeyring(origin string) (*Session, error) {
	data, err := keyring.Get(serviceName, key(origin))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("invalid stored session: %w", err)
	}
	return &sess, nil
}

func (s *Store) saveToKeyring(origin string, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, key(origin), string(data))
}

func (s *Store) credentialsPath() string {
	return filepath.Join(s.fallbackDir, credentialsFile)
}

func (s *Store) loadAllFromFile() (map[string]*Session, error) {
	data, err := os.ReadFile(s.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*Session), nil
		}
		return nil, err
	}

	var all map[string]*Session
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("invalid session file %s: %w", s.credentialsPath(), err)
	}
	if all == nil {
		all = make(map[string]*Session)
	}
	return all, nil
}

func (s *Store) saveAllToFile(all map[string]*Session) error {
	if err := os.MkdirAll(s.fallbackDir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.fallbackDir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Windows cannot rename over an existing file.
	destPath := s.credentialsPath()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *Store) loadFromFile(origin string) (*Session, error) {
	all, err := s.loadAllFromFile()
	if err != nil {
		return nil, err
	}

	sess, ok := all[origin]
	if !ok || sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (s *Store) saveToFile(origin string, sess *Session) error {
	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}

	all[origin] = sess
	return s.saveAllToFile(all)
}

func (s *Store) deleteFromFile(origin string) error {
	all, err := s.loadAllFromFile()
	if err != nil {
		return err
	}
	if _, ok := all[origin]; !ok {
		return nil
	}

	delete(all, origin)
	return s.saveAllToFile(all)
}

// MigrateToKeyring moves sessions from the plaintext file into the keyring.
func (s *Store) MigrateToKeyring() error {
	if !s.useKeyring {
		return nil
	}

	all, err := s.loadAllFromFile()
	if err != nil || len(all) == 0 {
		return nil //nolint:nilerr // nothing readable to migrate
	}

	for origin, sess := range all {
		if err := s.saveToKeyring(origin, sess); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", origin, err)
		}
	}

	_ = os.Remove(s.credentialsPath())
	return nil
}

// UsingKeyring returns true if the store is using the system keyring.
func (s *Store) UsingKeyring() bool {
	return s.useKeyring
}
