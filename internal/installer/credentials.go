package installer

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	DefaultURL      = "http://localhost:6185"
	DefaultUsername = "astrbot"
)

// Credentials address and authenticate against the host admin API.
type Credentials struct {
	URL         string `json:"astrbot_url"`
	Username    string `json:"api_username"`
	PasswordMD5 string `json:"api_password_md5"`
}

// Configured reports whether a password is present.
func (c Credentials) Configured() bool { return c.PasswordMD5 != "" }

func (c Credentials) withDefaults() Credentials {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Username == "" {
		c.Username = DefaultUsername
	}
	return c
}

// MD5Hex returns the lowercase hex md5 digest of s, the form the host
// admin API expects passwords in.
func MD5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NormalizeURL prepends http:// to a URL without a scheme and drops a
// trailing slash.
func NormalizeURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return DefaultURL
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}

// CredentialStore persists Credentials as a JSON file.
type CredentialStore struct {
	path string
	mu   sync.Mutex
}

// NewCredentialStore creates a store at path. An empty path disables
// persistence.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Path returns the file location.
func (s *CredentialStore) Path() string { return s.path }

// Load reads the saved credentials. A missing file yields defaults.
func (s *CredentialStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds := Credentials{}.withDefaults()
	if s.path == "" {
		return creds, nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("reading credentials: %w", err)
	}

	var saved Credentials
	if err := json.Unmarshal(data, &saved); err != nil {
		return creds, fmt.Errorf("parsing credentials: %w", err)
	}
	if saved.URL != "" {
		creds.URL = saved.URL
	}
	if saved.Username != "" {
		creds.Username = saved.Username
	}
	creds.PasswordMD5 = saved.PasswordMD5
	return creds, nil
}

// Save writes creds with mode 0600.
func (s *CredentialStore) Save(creds Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("no credentials file configured")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// SetCredentials normalizes url, hashes password and saves the result.
func (s *CredentialStore) SetCredentials(url, username, password string) (Credentials, error) {
	if password == "" {
		return Credentials{}, errors.New("password required")
	}
	creds := Credentials{
		URL:         NormalizeURL(url),
		Username:    username,
		PasswordMD5: MD5Hex(password),
	}.withDefaults()
	return creds, s.Save(creds)
}
