package attach

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store persists attachment bytes under a root directory. Files are
// written once at ingestion and removed only together with their parent
// record.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir. The directory is created on
// first write.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Save writes data under a collision-avoided name derived from filename
// and returns the resulting path. The Unix-millisecond prefix keeps two
// attachments with the same declared name apart.
func (s *Store) Save(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create attachments dir: %w", err)
	}

	name := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), filepath.Base(filename))
	path := filepath.Join(s.root, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment %s: %w", name, err)
	}
	return path, nil
}

// Read returns the stored bytes at path.
func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, nil
}

// Remove deletes the file at path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}
