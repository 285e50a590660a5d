package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BuildMIME 组装 RFC 5322 邮件
//
// 结构: multipart/mixed { multipart/alternative { text/plain, text/html }, 附件... }
// 无附件时直接使用 multipart/alternative。
func BuildMIME(msg *Message, now time.Time) ([]byte, error) {
	var buf bytes.Buffer

	domain := "localhost"
	if at := strings.LastIndex(msg.From.Email, "@"); at >= 0 {
		domain = msg.From.Email[at+1:]
	}

	writeHeader(&buf, "From", formatAddress(msg.From))
	writeHeader(&buf, "To", formatAddress(msg.To))
	if msg.ReplyTo != nil && msg.ReplyTo.Email != "" {
		writeHeader(&buf, "Reply-To", formatAddress(*msg.ReplyTo))
	}
	writeHeader(&buf, "Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	writeHeader(&buf, "Date", now.Format(time.RFC1123Z))
	writeHeader(&buf, "Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), domain))
	writeHeader(&buf, "MIME-Version", "1.0")

	if len(msg.Attachments) == 0 {
		alt := multipart.NewWriter(&buf)
		writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary()))
		buf.WriteString("\r\n")
		if err := writeAlternatives(alt, msg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	writeHeader(&buf, "Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", mixed.Boundary()))
	buf.WriteString("\r\n")

	var altBuf bytes.Buffer
	alt := multipart.NewWriter(&altBuf)
	if err := writeAlternatives(alt, msg); err != nil {
		return nil, err
	}
	altPart, err := mixed.CreatePart(textproto.MIMEHeader{
		"Content-Type": {fmt.Sprintf("multipart/alternative; boundary=%q", alt.Boundary())},
	})
	if err != nil {
		return nil, err
	}
	if _, err := altPart.Write(altBuf.Bytes()); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		if err := writeAttachment(mixed, att); err != nil {
			return nil, err
		}
	}
	if err := mixed.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAlternatives(w *multipart.Writer, msg *Message) error {
	if msg.Text != "" {
		if err := writeQuotedPrintable(w, "text/plain; charset=utf-8", msg.Text); err != nil {
			return err
		}
	}
	if msg.HTML != "" {
		if err := writeQuotedPrintable(w, "text/html; charset=utf-8", msg.HTML); err != nil {
			return err
		}
	}
	return w.Close()
}

func writeQuotedPrintable(w *multipart.Writer, contentType, body string) error {
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return err
	}
	qp := quotedprintable.NewWriter(part)
	if _, err := qp.Write([]byte(body)); err != nil {
		return err
	}
	return qp.Close()
}

func writeAttachment(w *multipart.Writer, att Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {mime.FormatMediaType(contentType, map[string]string{"name": att.FileName})},
		"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": att.FileName})},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return err
	}

	// base64 按 76 字符折行
	encoded := base64.StdEncoding.EncodeToString(att.Data)
	for len(encoded) > 76 {
		if _, err := part.Write([]byte(encoded[:76] + "\r\n")); err != nil {
			return err
		}
		encoded = encoded[76:]
	}
	if encoded != "" {
		if _, err := part.Write([]byte(encoded + "\r\n")); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteString(": ")
	buf.WriteString(value)
	buf.WriteString("\r\n")
}

func formatAddress(a Address) string {
	addr := mail.Address{Name: a.Name, Address: a.Email}
	return addr.String()
}
