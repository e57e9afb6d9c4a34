package storage

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type localFS struct {
	root string
}

func newLocalFS(cfg *Config) (*localFS, error) {
	if err := required("localfs", map[string]string{"save-path": cfg.SavePath}); err != nil {
		return nil, err
	}
	return &localFS{root: filepath.Join(cfg.SavePath, filepath.FromSlash(keyPrefix(cfg.CustomPath)))}, nil
}

func (p *localFS) SendContent(_ context.Context, key string, content []byte, modTime time.Time) (string, error) {
	dst := filepath.Join(p.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", errors.Wrap(err, "localfs")
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return "", errors.Wrap(err, "localfs")
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(dst, modTime, modTime); err != nil {
			return "", errors.Wrap(err, "localfs")
		}
	}
	return dst, nil
}

func (p *localFS) List(_ context.Context, prefix string) ([]Object, error) {
	var objs []Object
	err := filepath.WalkDir(p.root, func(fp string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, fp)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		objs = append(objs, Object{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	return objs, errors.Wrap(err, "localfs")
}

func (p *localFS) Delete(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(p.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "localfs")
	}
	return nil
}
