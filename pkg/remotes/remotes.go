// Package remotes persists the directory of named skill repositories: a flat
// name to URL mapping stored as YAML under the user's skilldock directory.
package remotes

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/skilldock/skilldock/pkg/validate"
)

// Remote is one named skill repository.
type Remote struct {
	Name    string    `yaml:"name"`
	URL     string    `yaml:"url"`
	AddedAt time.Time `yaml:"addedAt"`
}

type storeFile struct {
	Remotes []Remote `yaml:"remotes"`
}

// Store reads and writes the remote directory file.
type Store struct {
	path string
}

// DefaultPath returns the standard location of the remotes file.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(homeDir, ".skilldock", "remotes.yaml"), nil
}

// NewStore creates a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// List returns all configured remotes sorted by name. A missing store file
// means no remotes, not an error.
func (s *Store) List() ([]Remote, error) {
	file, err := s.load()
	if err != nil {
		return nil, err
	}

	sort.Slice(file.Remotes, func(i, j int) bool {
		return file.Remotes[i].Name < file.Remotes[j].Name
	})
	return file.Remotes, nil
}

// Get returns the remote with the given name, or nil when absent.
func (s *Store) Get(name string) (*Remote, error) {
	file, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range file.Remotes {
		if file.Remotes[i].Name == name {
			return &file.Remotes[i], nil
		}
	}
	return nil, nil
}

// Add registers a remote after validating its name and URL. Re-adding an
// existing name is an error; remove it first.
func (s *Store) Add(name, url string) error {
	if err := validate.CheckName(name); err != nil {
		return err
	}
	if err := validate.CheckRemoteURL(url); err != nil {
		return err
	}

	file, err := s.load()
	if err != nil {
		return err
	}

	for _, remote := range file.Remotes {
		if remote.Name == name {
			return errors.Errorf("remote '%s' already exists (url: %s)", name, remote.URL)
		}
	}

	file.Remotes = append(file.Remotes, Remote{
		Name:    name,
		URL:     url,
		AddedAt: time.Now().UTC(),
	})
	return s.save(file)
}

// Remove deletes a remote by name.
func (s *Store) Remove(name string) error {
	file, err := s.load()
	if err != nil {
		return err
	}

	kept := file.Remotes[:0]
	found := false
	for _, remote := range file.Remotes {
		if remote.Name == name {
			found = true
			continue
		}
		kept = append(kept, remote)
	}
	if !found {
		return errors.Errorf("remote '%s' not found", name)
	}

	file.Remotes = kept
	return s.save(file)
}

func (s *Store) load() (*storeFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &storeFile{}, nil
		}
		return nil, errors.Wrap(err, "failed to read remotes file")
	}

	var file storeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse remotes file %s", s.path)
	}
	return &file, nil
}

func (s *Store) save(file *storeFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return errors.Wrap(err, "failed to encode remotes file")
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write remotes file")
	}
	return nil
}
