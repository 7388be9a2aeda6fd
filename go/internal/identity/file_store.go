package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// FileStore keeps the user in a YAML file
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given file
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type fileRecord struct {
	User *User `yaml:"auction_user"`
}

// Load reads the stored user. A corrupt file is treated as empty.
func (s *FileStore) Load(ctx context.Context) (*User, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read identity file: %w", err)
	}

	var rec fileRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("ignoring unreadable identity file")
		return nil, ErrNotFound
	}
	if rec.User == nil || rec.User.ID == "" {
		return nil, ErrNotFound
	}
	return rec.User, nil
}

// Save writes the user, creating parent directories as needed
func (s *FileStore) Save(ctx context.Context, user User) error {
	data, err := yaml.Marshal(fileRecord{User: &user})
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write identity file: %w", err)
	}
	return nil
}

// Clear removes the stored user
func (s *FileStore) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove identity file: %w", err)
	}
	return nil
}
