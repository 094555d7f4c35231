// Package artifactsvc keeps the month table images rendered from calendar documents.
package artifactsvc

import (
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/esmeraldinha/backend/core"
	"github.com/esmeraldinha/backend/core/calendar"
)

type fileStore struct {
	dir    string
	logger core.Logger
}

var _ calendar.ArtifactStore = (*fileStore)(nil)

// NewFileStore saves images as `<dir>/<name>.png`, replacing existing files.
func NewFileStore(dir string, logger core.Logger) *fileStore {
	return &fileStore{dir: dir, logger: logger}
}

func (s *fileStore) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(filepath.Clean("/"+name))+".png")
}

func (s *fileStore) Save(ctx context.Context, name string, img image.Image) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("empty artifact name")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating artifact dir %s", s.dir)
	}

	fp := s.Path(name)
	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return errors.Wrap(err, "creating artifact file")
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err = png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "encoding %s", name)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "writing %s", name)
	}
	if err = os.Rename(tmp.Name(), fp); err != nil {
		return errors.Wrapf(err, "saving %s", name)
	}
	s.logger.Debug("saved artifact "+fp, map[string]interface{}{"artifact": name})
	return nil
}
