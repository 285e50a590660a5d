package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/storage"
)

// Pool 存储所需的连接池能力，*pgxpool.Pool 与 pgxmock 均满足
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id               VARCHAR(36)  PRIMARY KEY,
	name             VARCHAR(100) NOT NULL,
	email            VARCHAR(254) NOT NULL,
	phone            VARCHAR(20),
	linkedin_profile VARCHAR(500),
	message          TEXT         NOT NULL,
	status           VARCHAR(16)  NOT NULL DEFAULT 'new'
		CHECK (status IN ('new', 'read', 'replied', 'archived')),
	ip_address       VARCHAR(64),
	user_agent       VARCHAR(512),
	created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_submissions_email ON submissions (email);
CREATE INDEX IF NOT EXISTS idx_submissions_status ON submissions (status);
`

const insertSubmission = `
INSERT INTO submissions (id, name, email, phone, linkedin_profile, message, status, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectByRecency = `
SELECT id, name, email, COALESCE(phone, ''), COALESCE(linkedin_profile, ''), message, status,
       COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
FROM submissions
ORDER BY created_at DESC, id DESC`

// Store 基于 pgx 连接池的 PostgreSQL 存储实现
type Store struct {
	pool Pool
	now  func() time.Time
}

// NewStore 创建存储实例
func NewStore(pool Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Migrate 创建数据表与索引（幂等）
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate submissions table: %w", err)
	}
	return nil
}

// Create 保存提交
func (s *Store) Create(ctx context.Context, submission *domain.Submission) (*domain.Submission, error) {
	record := *submission
	if err := storage.Prepare(&record, s.now()); err != nil {
		return nil, err
	}

	_, err := s.pool.Exec(ctx, insertSubmission,
		record.ID,
		record.Name,
		record.Email,
		record.Phone,
		record.LinkedinProfile,
		record.Message,
		string(record.Status),
		record.IPAddress,
		record.UserAgent,
		record.CreatedAt,
	)
	if err != nil {
		return nil, classify("create", err)
	}
	return &record, nil
}

// ListAllByRecency 按创建时间倒序返回全部提交
func (s *Store) ListAllByRecency(ctx context.Context) ([]domain.Submission, error) {
	rows, err := s.pool.Query(ctx, selectByRecency)
	if err != nil {
		return nil, classify("list", err)
	}
	defer rows.Close()

	var out []domain.Submission
	for rows.Next() {
		var (
			sub             domain.Submission
			phone, linkedin string
			status          string
		)
		if err := rows.Scan(
			&sub.ID,
			&sub.Name,
			&sub.Email,
			&phone,
			&linkedin,
			&sub.Message,
			&status,
			&sub.IPAddress,
			&sub.UserAgent,
			&sub.CreatedAt,
		); err != nil {
			return nil, classify("list", err)
		}
		sub.Status = domain.SubmissionStatus(status)
		sub.Phone = optional(phone)
		sub.LinkedinProfile = optional(linkedin)
		sub.CreatedAt = sub.CreatedAt.UTC()
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list", err)
	}
	return out, nil
}

// Ping 测试数据库连接
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close 关闭连接池
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// classify 将 pgx 错误归类为存储错误
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			field := pgErr.ColumnName
			if field == "" {
				field = "submission"
			}
			return &storage.PersistenceError{
				Kind:       storage.KindValidation,
				Op:         op,
				Violations: []domain.Violation{{Field: field, Message: pgErr.Message}},
				Err:        err,
			}
		case "08", "57":
			return storage.Wrap(op, fmt.Errorf("%w: %v", storage.ErrUnavailable, err))
		}
	}

	var netErr net.Error
	if pgconn.Timeout(err) || errors.As(err, &netErr) {
		return storage.Wrap(op, fmt.Errorf("%w: %v", storage.ErrUnavailable, err))
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return storage.Wrap(op, fmt.Errorf("%w: %v", storage.ErrUnavailable, err))
	}

	return storage.Wrap(op, err)
}
