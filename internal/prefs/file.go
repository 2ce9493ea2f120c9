package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// FileBackend keeps the record as a JSON string under the namespace key of
// a JSON config file.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend stores preferences at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// DefaultPath is the preferences file under the user config directory.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "cli_player", "prefs.json")
}

// Path returns the file location.
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) open() (*viper.Viper, bool, error) {
	v := viper.New()
	v.SetConfigFile(b.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			return v, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", b.path, err)
	}
	return v, true, nil
}

func (b *FileBackend) Load(_ context.Context) (Record, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, exists, err := b.open()
	if err != nil || !exists {
		return Record{}, false, err
	}
	raw := v.GetString(Namespace)
	if raw == "" {
		return Record{}, false, nil
	}
	r, err := decode([]byte(raw))
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (b *FileBackend) Save(_ context.Context, r Record) error {
	data, err := encode(r)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	v, _, err := b.open()
	if err != nil {
		// unreadable file is overwritten
		v = viper.New()
		v.SetConfigType("json")
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	v.Set(Namespace, string(data))
	if err := v.WriteConfigAs(b.path); err != nil {
		return fmt.Errorf("write %s: %w", b.path, err)
	}
	return nil
}
