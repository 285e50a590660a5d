package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"portfolio/backend/internal/domain"
)

// ErrUnavailable 存储后端不可达
var ErrUnavailable = errors.New("storage unavailable")

// SubmissionRepository 定义联系表单提交的数据存取操作。
type SubmissionRepository interface {
	// Create 持久化提交，填充 ID 与 CreatedAt 后返回
	Create(ctx context.Context, submission *domain.Submission) (*domain.Submission, error)
	// ListAllByRecency 按创建时间倒序返回全部提交
	ListAllByRecency(ctx context.Context) ([]domain.Submission, error)
}

// Store 定义完整的存储接口。
type Store interface {
	SubmissionRepository

	// Ping 轻量级存活探测，不产生写入
	Ping(ctx context.Context) error
	Close() error
}

// Kind 持久化错误分类
type Kind int

const (
	KindUnknown     Kind = iota // 未知错误，按服务器错误处理
	KindValidation              // 存储层约束校验失败，按客户端错误处理
	KindUnavailable             // 存储不可达
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// PersistenceError 存储层错误
type PersistenceError struct {
	Kind       Kind
	Op         string
	Violations []domain.Violation
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Kind == KindValidation {
		msgs := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			msgs = append(msgs, v.Message)
		}
		return fmt.Sprintf("storage %s: validation failed: %s", e.Op, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("storage %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AsPersistenceError 提取 PersistenceError
func AsPersistenceError(err error) (*PersistenceError, bool) {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Wrap 将底层驱动错误包装为 PersistenceError
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if pe, ok := AsPersistenceError(err); ok {
		return pe
	}
	kind := KindUnknown
	if errors.Is(err, ErrUnavailable) {
		kind = KindUnavailable
	}
	return &PersistenceError{Kind: kind, Op: op, Err: err}
}

// Prepare 写入前由存储后端调用：分配 ID 与创建时间，补全默认值并执行存储层校验
func Prepare(submission *domain.Submission, now time.Time) error {
	submission.ID = uuid.NewString()
	submission.CreatedAt = now.UTC()
	if submission.Status == "" {
		submission.Status = domain.StatusNew
	}
	if submission.IPAddress == "" {
		submission.IPAddress = domain.UnknownProvenance
	}
	if submission.UserAgent == "" {
		submission.UserAgent = domain.UnknownProvenance
	}

	if violations := submission.CheckConstraints(); len(violations) > 0 {
		return &PersistenceError{
			Kind:       KindValidation,
			Op:         "create",
			Violations: violations,
			Err:        errors.New("constraint violation"),
		}
	}
	return nil
}
