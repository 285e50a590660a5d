package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"portfolio/backend/internal/domain"
	"portfolio/backend/internal/monitoring"
	"portfolio/backend/internal/notify"
	"portfolio/backend/internal/report"
	"portfolio/backend/internal/storage"
)

// 返回给提交者的提示语
const (
	MessageReceived       = "Thank you for reaching out! I have received your message and will get back to you soon."
	MessageDegradedSent   = "Message received! Email sent successfully. (Database temporarily unavailable)"
	MessageDegradedUnsent = "Message received! I'll get back to you soon. (Database and email temporarily unavailable)"
)

// TempIDPrefix 数据库不可用时临时编号的前缀
const TempIDPrefix = "temp-"

// ReportBuilder 生成全部提交的报表附件
type ReportBuilder interface {
	Build(ctx context.Context) ([]byte, error)
}

// Notifier 发送站长通知与提交者确认
type Notifier interface {
	Send(ctx context.Context, env notify.Envelope, attachment *notify.Attachment) notify.Result
	Transport() string
}

// Outcome 一次提交的处理结果
type Outcome struct {
	ID           string
	SubmittedAt  time.Time
	Persisted    bool // false 表示数据库不可用，提交仅经过校验
	EmailSent    bool
	Attached     bool // 通知是否附带了报表
	Message      string
	Notification notify.Result
}

// ContactService 处理联系表单提交
type ContactService struct {
	store    storage.Store
	reports  ReportBuilder
	notifier Notifier
	metrics  *monitoring.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewContactService 创建联系表单服务，metrics 与 log 可为空
func NewContactService(store storage.Store, reports ReportBuilder, notifier Notifier, metrics *monitoring.Metrics, log *zap.Logger) *ContactService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ContactService{
		store:    store,
		reports:  reports,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// SetClock 替换时间源
func (s *ContactService) SetClock(now func() time.Time) {
	s.now = now
}

// Submit 校验并保存提交，随后尽力生成报表并发送通知。
//
// 返回的错误只有两类：*domain.ValidationError（客户端可修正，包括存储层约束失败）
// 以及其他服务器错误。报表与通知失败只记录日志，不影响结果。
// 数据库不可达时跳过持久化与报表，仍尝试通知并以临时编号返回成功。
func (s *ContactService) Submit(ctx context.Context, input domain.SubmissionInput, from domain.Provenance) (*Outcome, error) {
	submission, violations := domain.ValidateSubmission(input)
	if len(violations) > 0 {
		s.log.Info("contact submission rejected", zap.Int("violations", len(violations)))
		s.recordSubmission(monitoring.OutcomeInvalid)
		return nil, &domain.ValidationError{Violations: violations}
	}
	submission.ApplyProvenance(from)

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("database unavailable, continuing without persistence", zap.Error(err))
		return s.submitDegraded(ctx, submission), nil
	}

	saved, err := s.store.Create(ctx, &submission)
	if err != nil {
		if pe, ok := storage.AsPersistenceError(err); ok && pe.Kind == storage.KindValidation {
			s.log.Info("contact submission rejected by storage", zap.Error(err))
			s.recordSubmission(monitoring.OutcomeInvalid)
			return nil, &domain.ValidationError{Violations: pe.Violations}
		}
		s.log.Error("failed to save contact submission", zap.Error(err))
		s.recordSubmission(monitoring.OutcomeFailed)
		return nil, fmt.Errorf("save submission: %w", err)
	}
	s.log.Info("contact submission saved", zap.String("contact_id", saved.ID))

	// 后续步骤不随客户端断开而取消
	detached := context.WithoutCancel(ctx)

	attachment := s.buildAttachment(detached)
	result := s.notify(detached, notify.EnvelopeFrom(*saved), attachment)

	s.recordSubmission(monitoring.OutcomeCreated)
	return &Outcome{
		ID:           saved.ID,
		SubmittedAt:  saved.CreatedAt,
		Persisted:    true,
		EmailSent:    result.Delivered,
		Attached:     attachment != nil,
		Message:      MessageReceived,
		Notification: result,
	}, nil
}

// submitDegraded 数据库不可用时的处理：不生成报表，以临时编号发送通知
func (s *ContactService) submitDegraded(ctx context.Context, submission domain.Submission) *Outcome {
	now := s.now().UTC()
	submission.ID = fmt.Sprintf("%s%d", TempIDPrefix, now.UnixMilli())
	submission.CreatedAt = now

	result := s.notify(context.WithoutCancel(ctx), notify.EnvelopeFrom(submission), nil)

	message := MessageDegradedUnsent
	if result.Delivered {
		message = MessageDegradedSent
	}

	s.recordSubmission(monitoring.OutcomeDegraded)
	return &Outcome{
		ID:           submission.ID,
		SubmittedAt:  now,
		EmailSent:    result.Delivered,
		Message:      message,
		Notification: result,
	}
}

// buildAttachment 生成报表附件，失败时返回 nil
func (s *ContactService) buildAttachment(ctx context.Context) *notify.Attachment {
	if s.reports == nil {
		return nil
	}

	start := time.Now()
	data, err := s.reports.Build(ctx)
	if s.metrics != nil {
		s.metrics.RecordReportBuild(err, time.Since(start))
	}
	if err != nil {
		var reportErr *report.Error
		if errors.As(err, &reportErr) {
			s.log.Warn("report build failed", zap.String("op", reportErr.Op), zap.Error(reportErr.Err))
		} else {
			s.log.Warn("report build failed", zap.Error(err))
		}
		return nil
	}

	return &notify.Attachment{
		FileName:    report.FileName(s.now().UTC()),
		ContentType: notify.SpreadsheetContentType,
		Data:        data,
	}
}

func (s *ContactService) notify(ctx context.Context, env notify.Envelope, attachment *notify.Attachment) notify.Result {
	if s.notifier == nil {
		return notify.Result{Err: notify.NotConfigured}
	}

	result := s.notifier.Send(ctx, env, attachment)
	if s.metrics != nil {
		s.metrics.RecordNotification(s.notifier.Transport(), result.Delivered)
	}
	if !result.Delivered {
		s.log.Warn("notification not delivered", zap.String("contact_id", env.ContactID), zap.String("error", result.Err))
	}
	return result
}

func (s *ContactService) recordSubmission(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordSubmission(outcome)
	}
}
