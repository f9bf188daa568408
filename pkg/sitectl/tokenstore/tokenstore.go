// Package tokenstore persists admin session tokens per context, preferring
// the OS keyring and falling back to a mode-0600 file when no keyring is
// available (headless machines, CI).
package tokenstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zalando/go-keyring"
	"golang.org/x/exp/maps"
)

const keyringService = "sitectl"

// ErrNotFound is returned when no token is stored for the context.
var ErrNotFound = errors.New("no token stored for context")

// Store saves and retrieves session tokens keyed by context name.
type Store interface {
	Save(contextName, token string) error
	Load(contextName string) (string, error)
	Delete(contextName string) error
	// List returns the context names with a stored token, sorted.
	List() ([]string, error)
}

// New picks a backend: "keyring", "file", or "" for keyring with file
// fallback.
func New(backend, filePath string) (Store, error) {
	switch backend {
	case "keyring":
		return &KeyringStore{}, nil
	case "file":
		return &FileStore{Path: filePath}, nil
	case "":
		ks := &KeyringStore{}
		if ks.available() {
			return ks, nil
		}
		return &FileStore{Path: filePath}, nil
	default:
		return nil, fmt.Errorf("unknown token storage backend: %s", backend)
	}
}

// KeyringStore keeps tokens in the OS keyring.
type KeyringStore struct{}

func (s *KeyringStore) available() bool {
	// A probe read tells us whether a keyring backend is usable at all.
	_, err := keyring.Get(keyringService, "sitectl-probe")
	return err == nil || errors.Is(err, keyring.ErrNotFound)
}

func (s *KeyringStore) Save(contextName, token string) error {
	if err := keyring.Set(keyringService, contextName, token); err != nil {
		return fmt.Errorf("saving token to keyring: %w", err)
	}
	return s.rememberContext(contextName)
}

func (s *KeyringStore) Load(contextName string) (string, error) {
	token, err := keyring.Get(keyringService, contextName)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading token from keyring: %w", err)
	}
	return token, nil
}

func (s *KeyringStore) Delete(contextName string) error {
	err := keyring.Delete(keyringService, contextName)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting token from keyring: %w", err)
	}
	_ = s.forgetContext(contextName)
	return nil
}

// The keyring has no enumeration API, so the known context names live in an
// index entry alongside the tokens.
const keyringIndexKey = "sitectl-contexts"

func (s *KeyringStore) List() ([]string, error) {
	names, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	sorted := maps.Keys(names)
	sort.Strings(sorted)
	return sorted, nil
}

func (s *KeyringStore) readIndex() (map[string]struct{}, error) {
	raw, err := keyring.Get(keyringService, keyringIndexKey)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("reading keyring index: %w", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("parsing keyring index: %w", err)
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set, nil
}

func (s *KeyringStore) writeIndex(names map[string]struct{}) error {
	list := maps.Keys(names)
	sort.Strings(list)
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return keyring.Set(keyringService, keyringIndexKey, string(raw))
}

func (s *KeyringStore) rememberContext(contextName string) error {
	names, err := s.readIndex()
	if err != nil {
		return err
	}
	names[contextName] = struct{}{}
	return s.writeIndex(names)
}

func (s *KeyringStore) forgetContext(contextName string) error {
	names, err := s.readIndex()
	if err != nil {
		return err
	}
	delete(names, contextName)
	return s.writeIndex(names)
}

// FileStore keeps tokens in a JSON file.
type FileStore struct {
	Path string
}

type tokenFile struct {
	Tokens map[string]string `json:"tokens"`
}

func (s *FileStore) read() (*tokenFile, error) {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &tokenFile{Tokens: map[string]string{}}, nil
		}
		return nil, err
	}
	var tf tokenFile
	if err := json.Unmarshal(content, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	if tf.Tokens == nil {
		tf.Tokens = map[string]string{}
	}
	return &tf, nil
}

func (s *FileStore) write(tf *tokenFile) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	content, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path, content, 0o600)
}

func (s *FileStore) Save(contextName, token string) error {
	tf, err := s.read()
	if err != nil {
		return err
	}
	tf.Tokens[contextName] = token
	return s.write(tf)
}

func (s *FileStore) Load(contextName string) (string, error) {
	tf, err := s.read()
	if err != nil {
		return "", err
	}
	token, ok := tf.Tokens[contextName]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (s *FileStore) Delete(contextName string) error {
	tf, err := s.read()
	if err != nil {
		return err
	}
	delete(tf.Tokens, contextName)
	return s.write(tf)
}

func (s *FileStore) List() ([]string, error) {
	tf, err := s.read()
	if err != nil {
		return nil, err
	}
	names := maps.Keys(tf.Tokens)
	sort.Strings(names)
	return names, nil
}
