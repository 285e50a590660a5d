// Package notify 发送联系表单相关邮件：站长通知与提交者确认。
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"portfolio/backend/internal/domain"
)

// NotConfigured 邮件渠道缺少凭据时返回的错误描述
const NotConfigured = "Email not configured"

// SpreadsheetContentType xlsx 附件的 MIME 类型
const SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ErrNotConfigured 邮件渠道未配置
var ErrNotConfigured = errors.New(NotConfigured)

// Address 邮件地址
type Address struct {
	Name  string
	Email string
}

// Attachment 邮件附件
type Attachment struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Message 一封待发送的邮件
type Message struct {
	From        Address
	To          Address
	ReplyTo     *Address
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

// Transport 邮件发送渠道
type Transport interface {
	// Name 渠道名称，用于日志与指标
	Name() string
	// Configured 是否具备发送所需的凭据
	Configured() bool
	// Verify 检查渠道可用（连接与认证），不发送邮件
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg *Message) error
}

// Envelope 通知所需的提交信息
type Envelope struct {
	ContactID       string
	Name            string
	Email           string
	Phone           string
	LinkedinProfile string
	Message         string // 存储形式（已 HTML 转义）
	SubmittedAt     time.Time
}

// EnvelopeFrom 由提交记录构造通知信封
func EnvelopeFrom(sub domain.Submission) Envelope {
	env := Envelope{
		ContactID:   sub.ID,
		Name:        sub.Name,
		Email:       sub.Email,
		Message:     sub.Message,
		SubmittedAt: sub.CreatedAt,
	}
	if sub.Phone != nil {
		env.Phone = *sub.Phone
	}
	if sub.LinkedinProfile != nil {
		env.LinkedinProfile = *sub.LinkedinProfile
	}
	return env
}

// Result 发送结果，Err 为空表示成功
type Result struct {
	Delivered bool   `json:"delivered"`
	Err       string `json:"error,omitempty"`
}

// Options 发件配置
type Options struct {
	FromAddress     string // 发件地址
	AdminAddress    string // 站长收件地址
	AdminSenderName string // 通知邮件的发件人名称
	OwnerName       string // 确认邮件的发件人名称
}

// Notifier 按顺序发送站长通知与提交者确认邮件
type Notifier struct {
	transport Transport
	renderer  Renderer
	opts      Options
	log       *zap.Logger
}

// New 创建 Notifier
func New(transport Transport, renderer Renderer, opts Options, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.AdminSenderName == "" {
		opts.AdminSenderName = "Portfolio Contact Form"
	}
	return &Notifier{transport: transport, renderer: renderer, opts: opts, log: log}
}

// Configured 判断邮件渠道是否已配置
func (n *Notifier) Configured() bool {
	return n.transport != nil && n.transport.Configured() && n.opts.AdminAddress != ""
}

// Transport 返回渠道名称
func (n *Notifier) Transport() string {
	if n.transport == nil {
		return "none"
	}
	return n.transport.Name()
}

// Check 探测邮件配置是否可用，不发送邮件
func (n *Notifier) Check(ctx context.Context) error {
	if !n.Configured() {
		return ErrNotConfigured
	}
	return n.transport.Verify(ctx)
}

// Send 发送站长通知（可带附件）与提交者确认
//
// 只尝试一次；第一封成功而第二封失败时，已发送的邮件不会撤回。
func (n *Notifier) Send(ctx context.Context, env Envelope, attachment *Attachment) Result {
	if !n.Configured() {
		n.log.Warn("email transport not configured")
		return Result{Err: NotConfigured}
	}

	log := n.log.With(
		zap.String("transport", n.transport.Name()),
		zap.String("contact_id", env.ContactID),
	)

	if err := n.transport.Verify(ctx); err != nil {
		log.Error("email transport verification failed", zap.Error(err))
		return Result{Err: err.Error()}
	}

	admin, err := n.adminMessage(env, attachment)
	if err != nil {
		log.Error("failed to render admin email", zap.Error(err))
		return Result{Err: err.Error()}
	}
	if err := n.transport.Send(ctx, admin); err != nil {
		log.Error("failed to send admin email", zap.Error(err))
		return Result{Err: err.Error()}
	}
	log.Info("admin email sent", zap.Bool("attachment", attachment != nil))

	ack, err := n.acknowledgementMessage(env)
	if err != nil {
		log.Error("failed to render acknowledgement email", zap.Error(err))
		return Result{Err: err.Error()}
	}
	if err := n.transport.Send(ctx, ack); err != nil {
		log.Error("failed to send acknowledgement email", zap.Error(err))
		return Result{Err: err.Error()}
	}
	log.Info("acknowledgement email sent")

	return Result{Delivered: true}
}

func (n *Notifier) adminMessage(env Envelope, attachment *Attachment) (*Message, error) {
	content, err := n.renderer.RenderAdmin(env, attachment != nil)
	if err != nil {
		return nil, fmt.Errorf("render admin email: %w", err)
	}

	msg := &Message{
		From:    Address{Name: n.opts.AdminSenderName, Email: n.opts.FromAddress},
		To:      Address{Email: n.opts.AdminAddress},
		ReplyTo: &Address{Name: env.Name, Email: env.Email},
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	}
	if attachment != nil {
		msg.Attachments = []Attachment{*attachment}
	}
	return msg, nil
}

func (n *Notifier) acknowledgementMessage(env Envelope) (*Message, error) {
	content, err := n.renderer.RenderAcknowledgement(env)
	if err != nil {
		return nil, fmt.Errorf("render acknowledgement email: %w", err)
	}

	return &Message{
		From:    Address{Name: n.opts.OwnerName, Email: n.opts.FromAddress},
		To:      Address{Name: env.Name, Email: env.Email},
		Subject: content.Subject,
		HTML:    content.HTML,
		Text:    content.Text,
	}, nil
}
