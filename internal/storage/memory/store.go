package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/storage"
)

// Store 使用内存保存联系表单提交，主要用于开发验证。
type Store struct {
	mu    sync.RWMutex
	items []domain.Submission
	now   func() time.Time
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{now: time.Now}
}

// SetClock 替换时间源（测试使用）
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create 保存提交
func (s *Store) Create(ctx context.Context, submission *domain.Submission) (*domain.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap("create", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := cloneSubmission(*submission)
	if err := storage.Prepare(&record, s.now()); err != nil {
		return nil, err
	}
	s.items = append(s.items, record)

	out := cloneSubmission(record)
	return &out, nil
}

// ListAllByRecency 按创建时间倒序返回，时间相同时后写入的排在前面
func (s *Store) ListAllByRecency(ctx context.Context) ([]domain.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.Wrap("list", err)
	}

	s.mu.RLock()
	out := make([]domain.Submission, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, cloneSubmission(s.items[i]))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Count 返回已保存的提交数量，供测试断言使用
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Ping 内存存储始终可用
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Close 无操作
func (s *Store) Close() error {
	return nil
}

// cloneSubmission 深拷贝可选字段，避免调用方修改内部状态
func cloneSubmission(in domain.Submission) domain.Submission {
	out := in
	if in.Phone != nil {
		phone := *in.Phone
		out.Phone = &phone
	}
	if in.LinkedinProfile != nil {
		profile := *in.LinkedinProfile
		out.LinkedinProfile = &profile
	}
	return out
}
