package storage

import (
	"context"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/studio-b12/gowebdav"
)

type webdavStore struct {
	client *gowebdav.Client
	root   string
}

func newWebDAV(cfg *Config) (*webdavStore, error) {
	if err := required(WebDAV, map[string]string{"endpoint": cfg.Endpoint}); err != nil {
		return nil, err
	}
	return &webdavStore{
		client: gowebdav.NewClient(cfg.Endpoint, cfg.User, cfg.Password),
		root:   "/" + keyPrefix(cfg.CustomPath),
	}, nil
}

// SendContent WebDAV has no mtime setter, modTime is ignored
// SendContent WebDAV 无法设置修改时间，modTime 被忽略
func (w *webdavStore) SendContent(_ context.Context, key string, content []byte, _ time.Time) (string, error) {
	fileKey := path.Join(w.root, key)
	if err := w.client.MkdirAll(path.Dir(fileKey), 0o755); err != nil {
		return "", errors.Wrap(err, "webdav mkdir")
	}
	if err := w.client.Write(fileKey, content, 0o644); err != nil {
		return "", errors.Wrap(err, "webdav write")
	}
	return fileKey, nil
}

// List only looks at the directory named by prefix, not below it
// List 只列出 prefix 所在的目录，不递归
func (w *webdavStore) List(_ context.Context, prefix string) ([]Object, error) {
	dir, name := path.Split(prefix)
	infos, err := w.client.ReadDir(path.Join(w.root, dir))
	if err != nil {
		if gowebdav.IsErrNotFound(err) || errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "webdav list")
	}

	var objs []Object
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasPrefix(fi.Name(), name) {
			continue
		}
		objs = append(objs, Object{Key: dir + fi.Name(), Size: fi.Size(), ModTime: fi.ModTime()})
	}
	return objs, nil
}

func (w *webdavStore) Delete(_ context.Context, key string) error {
	return errors.Wrap(w.client.Remove(path.Join(w.root, key)), "webdav delete")
}
