package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// SMTPConfig SMTP 发送配置
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	Secure             bool // 隐式 TLS（通常为 465 端口）
	InsecureSkipVerify bool
	DisableStartTLS    bool          // 不升级 STARTTLS，仅用于本地中继
	LocalName          string        // EHLO 使用的主机名
	Timeout            time.Duration // 建连超时
}

// SMTPTransport 通过 SMTP 提交邮件
//
// Secure 为 true 时建立 TLS 连接后再握手；否则要求服务器支持 STARTTLS 并升级连接，
// 除非设置了 DisableStartTLS。
type SMTPTransport struct {
	cfg SMTPConfig
	now func() time.Time
}

// NewSMTPTransport 创建 SMTP 渠道
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPTransport{cfg: cfg, now: time.Now}
}

// Name 渠道名称
func (t *SMTPTransport) Name() string {
	return "smtp"
}

// Configured 用户名和密码均已设置
func (t *SMTPTransport) Configured() bool {
	return t.cfg.Username != "" && t.cfg.Password != ""
}

// Verify 建立连接并完成认证，不发送邮件
func (t *SMTPTransport) Verify(ctx context.Context) error {
	c, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Noop(); err != nil {
		return fmt.Errorf("smtp noop: %w", err)
	}
	return c.Quit()
}

// Send 投递一封邮件
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	raw, err := BuildMIME(msg, t.now())
	if err != nil {
		return fmt.Errorf("build message: %w", err)
	}

	c, err := t.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Mail(msg.From.Email, nil); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	if err := c.Rcpt(msg.To.Email, nil); err != nil {
		return fmt.Errorf("smtp RCPT TO: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := bytes.NewReader(raw).WriteTo(w); err != nil {
		w.Close()
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}

	return c.Quit()
}

func (t *SMTPTransport) connect(ctx context.Context) (*gosmtp.Client, error) {
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	dialer := &net.Dialer{Timeout: t.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	tlsConfig := &tls.Config{
		ServerName:         t.cfg.Host,
		InsecureSkipVerify: t.cfg.InsecureSkipVerify, //nolint:gosec // 仅用于本地调试
	}

	var c *gosmtp.Client
	switch {
	case t.cfg.Secure:
		c = gosmtp.NewClient(tls.Client(conn, tlsConfig))
	case t.cfg.DisableStartTLS:
		c = gosmtp.NewClient(conn)
	default:
		c, err = gosmtp.NewClientStartTLS(conn, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}

	// STARTTLS 之后需要重新 EHLO
	if err := c.Hello(t.cfg.LocalName); err != nil {
		c.Close()
		return nil, fmt.Errorf("smtp hello: %w", err)
	}

	if ok, _ := c.Extension("AUTH"); ok {
		auth := sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		if err := c.Auth(auth); err != nil {
			c.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}

	return c, nil
}
