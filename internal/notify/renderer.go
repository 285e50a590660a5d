package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

//go:embed templates/*
var templateFS embed.FS

// SubmittedOnLayout 邮件中提交时间的展示格式
const SubmittedOnLayout = "Monday, January 2, 2006 at 03:04 PM MST"

// Content 渲染后的邮件内容
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer 负责邮件的展示内容
type Renderer interface {
	RenderAdmin(env Envelope, attached bool) (Content, error)
	RenderAcknowledgement(env Envelope) (Content, error)
}

// TemplateRenderer 基于 html/template 与 text/template 的默认实现
type TemplateRenderer struct {
	adminHTML *htmltemplate.Template
	adminText *texttemplate.Template
	ackHTML   *htmltemplate.Template
	ackText   *texttemplate.Template

	frontendURL string
	ownerName   string
	location    *time.Location
}

// RendererOptions 渲染配置
type RendererOptions struct {
	FrontendURL string         // 确认邮件中的站点链接
	OwnerName   string         // 确认邮件署名
	Location    *time.Location // 提交时间使用的时区
}

type templateData struct {
	Envelope
	SubmittedOn string
	Attached    bool
	FrontendURL string
	OwnerName   string
}

// NewTemplateRenderer 解析内置模板
func NewTemplateRenderer(opts RendererOptions) (*TemplateRenderer, error) {
	r := &TemplateRenderer{
		frontendURL: opts.FrontendURL,
		ownerName:   opts.OwnerName,
		location:    opts.Location,
	}
	if r.frontendURL == "" {
		r.frontendURL = "http://localhost:3000"
	}
	if r.location == nil {
		r.location = time.UTC
	}

	var err error
	if r.adminHTML, err = htmltemplate.ParseFS(templateFS, "templates/admin.html"); err != nil {
		return nil, fmt.Errorf("parse admin html template: %w", err)
	}
	if r.adminText, err = texttemplate.ParseFS(templateFS, "templates/admin.txt"); err != nil {
		return nil, fmt.Errorf("parse admin text template: %w", err)
	}
	if r.ackHTML, err = htmltemplate.ParseFS(templateFS, "templates/acknowledgement.html"); err != nil {
		return nil, fmt.Errorf("parse acknowledgement html template: %w", err)
	}
	if r.ackText, err = texttemplate.ParseFS(templateFS, "templates/acknowledgement.txt"); err != nil {
		return nil, fmt.Errorf("parse acknowledgement text template: %w", err)
	}
	return r, nil
}

// RenderAdmin 渲染站长通知
func (r *TemplateRenderer) RenderAdmin(env Envelope, attached bool) (Content, error) {
	data := r.data(env, attached)

	htmlBody, textBody, err := render(r.adminHTML, r.adminText, data)
	if err != nil {
		return Content{}, err
	}
	return Content{
		Subject: fmt.Sprintf("New Contact: %s wants to connect!", singleLine(env.Name)),
		HTML:    htmlBody,
		Text:    textBody,
	}, nil
}

// RenderAcknowledgement 渲染提交者确认邮件
func (r *TemplateRenderer) RenderAcknowledgement(env Envelope) (Content, error) {
	data := r.data(env, false)

	htmlBody, textBody, err := render(r.ackHTML, r.ackText, data)
	if err != nil {
		return Content{}, err
	}
	return Content{
		Subject: "Thank you for reaching out!",
		HTML:    htmlBody,
		Text:    textBody,
	}, nil
}

func (r *TemplateRenderer) data(env Envelope, attached bool) templateData {
	// 存储的留言已转义，模板渲染时会重新转义
	env.Message = html.UnescapeString(env.Message)

	submittedAt := env.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	return templateData{
		Envelope:    env,
		SubmittedOn: submittedAt.In(r.location).Format(SubmittedOnLayout),
		Attached:    attached,
		FrontendURL: r.frontendURL,
		OwnerName:   r.ownerName,
	}
}

func render(h *htmltemplate.Template, t *texttemplate.Template, data templateData) (string, string, error) {
	var htmlBuf, textBuf bytes.Buffer
	if err := h.Execute(&htmlBuf, data); err != nil {
		return "", "", fmt.Errorf("execute %s: %w", h.Name(), err)
	}
	if err := t.Execute(&textBuf, data); err != nil {
		return "", "", fmt.Errorf("execute %s: %w", t.Name(), err)
	}
	return htmlBuf.String(), textBuf.String(), nil
}

// singleLine 去掉换行，防止主题头注入
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
