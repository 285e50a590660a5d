package notify

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridTransport 通过 SendGrid v3 API 发送邮件
type SendGridTransport struct {
	apiKey string
	host   string
	client *sendgrid.Client
}

// NewSendGridTransport 创建 SendGrid 渠道，host 为空时使用官方地址
func NewSendGridTransport(apiKey, host string) *SendGridTransport {
	if host == "" {
		host = "https://api.sendgrid.com"
	}
	req := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	req.Method = rest.Post
	return &SendGridTransport{
		apiKey: apiKey,
		host:   host,
		client: &sendgrid.Client{Request: req},
	}
}

// Name 渠道名称
func (t *SendGridTransport) Name() string {
	return "sendgrid"
}

// Configured API Key 已设置
func (t *SendGridTransport) Configured() bool {
	return t.apiKey != ""
}

// Verify 查询 API Key 的权限范围以确认凭据有效
func (t *SendGridTransport) Verify(ctx context.Context) error {
	req := sendgrid.GetRequest(t.apiKey, "/v3/scopes", t.host)
	req.Method = rest.Get

	resp, err := rest.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid verify: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid verify returned status %d", resp.StatusCode)
	}
	return nil
}

// Send 发送邮件
func (t *SendGridTransport) Send(ctx context.Context, msg *Message) error {
	resp, err := t.client.SendWithContext(ctx, buildSendGridMail(msg))
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func buildSendGridMail(msg *Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(msg.From.Name, msg.From.Email))
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.To.Name, msg.To.Email))
	m.AddPersonalizations(p)

	if msg.ReplyTo != nil && msg.ReplyTo.Email != "" {
		m.SetReplyTo(mail.NewEmail(msg.ReplyTo.Name, msg.ReplyTo.Email))
	}

	// SendGrid 要求 text/plain 在 text/html 之前
	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}

	for _, att := range msg.Attachments {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Data))
		a.SetType(att.ContentType)
		a.SetFilename(att.FileName)
		a.SetDisposition("attachment")
		m.AddAttachment(a)
	}
	return m
}
