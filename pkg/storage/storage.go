// Package storage writes snapshot backups to local disk or a remote object store
// Package storage 将快照备份写入本地磁盘或远端对象存储
package storage

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/haierkeys/notegpt-sync-service/pkg/code"

	"github.com/pkg/errors"
)

type Type = string

const (
	LOCAL  Type = "localfs"
	S3     Type = "s3"
	R2     Type = "r2"
	MinIO  Type = "minio"
	OSS    Type = "oss"
	WebDAV Type = "webdav"
)

// StorageTypeMap 支持的存储类型
var StorageTypeMap = map[Type]bool{
	LOCAL:  true,
	S3:     true,
	R2:     true,
	MinIO:  true,
	OSS:    true,
	WebDAV: true,
}

// Config unified storage configuration; each backend reads the fields it needs
// Config 统一存储配置，各后端只读取自己需要的字段
type Config struct {
	Type Type `yaml:"type" default:"localfs"`

	// CustomPath key prefix inside the bucket, WebDAV root or save path
	// CustomPath 存储桶、WebDAV 根目录或本地目录下的路径前缀
	CustomPath string `yaml:"custom-path"`

	// Cloud Storage (S3/OSS/MinIO/R2)
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	BucketName      string `yaml:"bucket-name"`
	AccessKeyID     string `yaml:"access-key-id"`
	AccessKeySecret string `yaml:"access-key-secret"`
	AccountID       string `yaml:"account-id"` // Cloudflare R2

	// WebDAV
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Local FS
	SavePath string `yaml:"save-path" default:"storage/backups"`
}

// Object a stored object; Key is relative to CustomPath
// Object 已存储的对象，Key 相对于 CustomPath
type Object struct {
	Key     string    `json:"key"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

type Storager interface {
	// SendContent stores content under key and returns where it landed
	// SendContent 以 key 保存内容并返回实际位置
	SendContent(ctx context.Context, key string, content []byte, modTime time.Time) (string, error)
	// List 列出 key 以 prefix 开头的对象
	List(ctx context.Context, prefix string) ([]Object, error)
	// Delete 删除对象，不存在时不报错
	Delete(ctx context.Context, key string) error
}

// NewClient 按类型创建存储客户端
func NewClient(cfg *Config) (Storager, error) {
	if cfg == nil {
		return nil, code.ErrorInvalidStorageType
	}

	switch cfg.Type {
	case LOCAL:
		return newLocalFS(cfg)
	case S3, R2, MinIO:
		return newS3(cfg)
	case OSS:
		return newOSS(cfg)
	case WebDAV:
		return newWebDAV(cfg)
	}
	return nil, errors.Wrapf(code.ErrorInvalidStorageType, "storage type %q", cfg.Type)
}

// keyPrefix turns a custom path into "a/b/" or ""
func keyPrefix(customPath string) string {
	p := strings.Trim(path.Clean("/"+customPath), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func required(backend string, fields map[string]string) error {
	for name, v := range fields {
		if v == "" {
			return errors.Errorf("%s: %s is required", backend, name)
		}
	}
	return nil
}
