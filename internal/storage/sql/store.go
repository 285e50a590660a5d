package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"portfolio/backend/internal/config"
	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
	now        func() time.Time
}

// NewStore 根据配置打开数据库、校验连通性并执行迁移
func NewStore(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	driverName := cfg.Type
	if driverName != "mysql" && driverName != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := NewStoreWithDB(db, driverName)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewStoreWithDB 使用已建立的连接创建存储（不执行迁移）
func NewStoreWithDB(db *sql.DB, driverName string) (*Store, error) {
	var dialector gorm.Dialector
	switch driverName {
	case "mysql":
		dialector = mysql.New(mysql.Config{
			Conn:                      db,
			SkipInitializeWithVersion: true,
		})
	case "postgres":
		dialector = postgres.New(postgres.Config{
			Conn: db,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
		now:        time.Now,
	}, nil
}

// Migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) Migrate() error {
	return s.gormDB.AutoMigrate(&domain.Submission{})
}

// Create 保存提交
func (s *Store) Create(ctx context.Context, submission *domain.Submission) (*domain.Submission, error) {
	record := *submission
	if err := storage.Prepare(&record, s.now()); err != nil {
		return nil, err
	}

	if err := s.gormDB.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, classify("create", err)
	}
	return &record, nil
}

// ListAllByRecency 按创建时间倒序返回全部提交
func (s *Store) ListAllByRecency(ctx context.Context) ([]domain.Submission, error) {
	var submissions []domain.Submission
	err := s.gormDB.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&submissions).Error
	if err != nil {
		return nil, classify("list", err)
	}
	return submissions, nil
}

// Ping 检查数据库连通性
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrUnavailable
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// classify 将驱动错误归类为存储错误
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 22xxx 数据异常（如超长），23xxx 约束冲突
		switch pqErr.Code.Class() {
		case "22", "23":
			return constraintError(op, pqErr.Column, pqErr.Message, err)
		case "08", "57":
			return storage.Wrap(op, fmt.Errorf("%w: %v", storage.ErrUnavailable, err))
		}
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1048, 1364, 1406, 1452, 3819: // NOT NULL、无默认值、超长、外键、CHECK
			return constraintError(op, "", myErr.Message, err)
		}
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, mysqldriver.ErrInvalidConn) || errors.As(err, &netErr) {
		return storage.Wrap(op, fmt.Errorf("%w: %v", storage.ErrUnavailable, err))
	}

	return storage.Wrap(op, err)
}

func constraintError(op, column, message string, err error) error {
	field := column
	if field == "" {
		field = "submission"
	}
	return &storage.PersistenceError{
		Kind:       storage.KindValidation,
		Op:         op,
		Violations: []domain.Violation{{Field: field, Message: message}},
		Err:        err,
	}
}
