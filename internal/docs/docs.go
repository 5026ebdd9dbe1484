// Package docs exposes the document storage directory where claim
// attachments land. The service only lists; uploads happen out of band.
package docs

import (
	"errors"
	"os"
	"sort"
	"strings"
	"time"
)

// File describes one stored document.
type File struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Service lists documents from a fixed directory.
type Service struct {
	dir string
}

// NewService constructs Service for the given directory.
func NewService(dir string) *Service {
	return &Service{dir: dir}
}

// List returns the stored documents sorted by name. A missing directory is
// an empty store, not an error.
func (s *Service) List() ([]File, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []File
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, File{
			Name:       e.Name(),
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
