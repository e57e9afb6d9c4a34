package domain

import (
	"github.com/pkg/errors"
)

// Error kinds shared by the store, the coordinator and the client agent
// 存储层、协调器与客户端共享的错误类型
var (
	// ErrProtocol malformed or unparseable message
	// ErrProtocol 消息格式错误或无法解析
	ErrProtocol = errors.New("protocol error")
	// ErrUnauthorized connection refused at handshake
	// ErrUnauthorized 握手阶段拒绝连接
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStorageFailure entity store I/O error
	// ErrStorageFailure 实体存储 I/O 错误
	ErrStorageFailure = errors.New("storage failure")
	// ErrRelationTarget relation endpoint does not exist
	// ErrRelationTarget 关联的笔记或目标不存在
	ErrRelationTarget = errors.New("relation target not found")
	// ErrUnknownKind unsupported entity kind or relation name
	ErrUnknownKind = errors.New("unknown entity kind")
)

// StorageError wraps a storage engine error with the operation that failed
// StorageError 包装存储引擎错误及失败的操作
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage failure: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the engine error
func (e *StorageError) Unwrap() error { return e.Err }

// Is matches ErrStorageFailure
func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

// NewStorageError wraps err with a stack trace; nil stays nil
// NewStorageError 附带调用栈包装存储错误，nil 返回 nil
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: errors.WithStack(err)}
}
