package storage

import (
	"context"
	"fmt"

	"portfolio/backend/internal/domain"
)

// Offline 在数据库无法连接时替代真实存储，所有操作均返回不可用。
type Offline struct {
	cause error
}

// NewOffline 创建离线存储，cause 为启动时的连接错误
func NewOffline(cause error) *Offline {
	return &Offline{cause: cause}
}

// Create 始终失败
func (o *Offline) Create(_ context.Context, _ *domain.Submission) (*domain.Submission, error) {
	return nil, &PersistenceError{Kind: KindUnavailable, Op: "create", Err: o.err()}
}

// ListAllByRecency 始终失败
func (o *Offline) ListAllByRecency(_ context.Context) ([]domain.Submission, error) {
	return nil, &PersistenceError{Kind: KindUnavailable, Op: "list", Err: o.err()}
}

// Ping 始终返回 ErrUnavailable
func (o *Offline) Ping(_ context.Context) error {
	return o.err()
}

// Close 无操作
func (o *Offline) Close() error {
	return nil
}

func (o *Offline) err() error {
	if o.cause == nil {
		return ErrUnavailable
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, o.cause)
}
