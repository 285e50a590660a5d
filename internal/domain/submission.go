package domain

import (
	"time"
	"unicode/utf8"
)

// SubmissionStatus 联系表单提交的处理状态
type SubmissionStatus string

const (
	StatusNew      SubmissionStatus = "new"      // 新提交，尚未查看
	StatusRead     SubmissionStatus = "read"     // 已查看
	StatusReplied  SubmissionStatus = "replied"  // 已回复
	StatusArchived SubmissionStatus = "archived" // 已归档
)

// AllStatuses 按报表展示顺序列出全部状态
var AllStatuses = []SubmissionStatus{StatusNew, StatusRead, StatusReplied, StatusArchived}

// Valid 判断状态值是否属于枚举范围
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusNew, StatusRead, StatusReplied, StatusArchived:
		return true
	}
	return false
}

// UnknownProvenance 无法获取来源信息时的占位值
const UnknownProvenance = "unknown"

// 存储层长度上限
const (
	// MaxStoredMessageLength 转义后的留言最大长度（1000 字符全部转义的最坏情况）
	MaxStoredMessageLength = MaxMessageLength * 6
	MaxIPAddressLength     = 64
	MaxUserAgentLength     = 512
)

// Submission 表示一条联系表单提交记录。
type Submission struct {
	ID              string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name            string           `json:"name" gorm:"type:varchar(100);not null"`
	Email           string           `json:"email" gorm:"type:varchar(254);not null;index"`
	Phone           *string          `json:"phone,omitempty" gorm:"type:varchar(20)"`
	LinkedinProfile *string          `json:"linkedinProfile,omitempty" gorm:"type:varchar(500)"`
	Message         string           `json:"message" gorm:"type:text;not null"`
	Status          SubmissionStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	IPAddress       string           `json:"ipAddress" gorm:"type:varchar(64)"`
	UserAgent       string           `json:"userAgent" gorm:"type:varchar(512)"`
	CreatedAt       time.Time        `json:"createdAt" gorm:"not null;index"`
}

// TableName 指定 GORM 表名
func (Submission) TableName() string {
	return "submissions"
}

// SubmissionInput 联系表单的原始请求载荷
type SubmissionInput struct {
	Name            string `json:"name" form:"name"`
	Email           string `json:"email" form:"email"`
	Phone           string `json:"phone" form:"phone"`
	LinkedinProfile string `json:"linkedinProfile" form:"linkedinProfile"`
	Message         string `json:"message" form:"message"`
}

// Provenance 请求来源信息（尽力获取）
type Provenance struct {
	IPAddress string
	UserAgent string
}

// ApplyProvenance 写入来源信息，缺失时使用 "unknown"
func (s *Submission) ApplyProvenance(p Provenance) {
	s.IPAddress = orUnknown(truncate(p.IPAddress, MaxIPAddressLength))
	s.UserAgent = orUnknown(truncate(p.UserAgent, MaxUserAgentLength))
}

// CheckConstraints 存储层独立校验
//
// 与 ValidateSubmission 不同，这里只检查持久化约束：必填字段、长度上限、
// 邮箱已规范化、状态枚举合法。
func (s *Submission) CheckConstraints() []Violation {
	var out []Violation

	if s.Name == "" {
		out = append(out, Violation{Field: "name", Message: "Name is required", Value: s.Name})
	} else if utf8.RuneCountInString(s.Name) > MaxNameLength {
		out = append(out, Violation{Field: "name", Message: "Name cannot exceed 100 characters", Value: s.Name})
	}

	switch {
	case s.Email == "":
		out = append(out, Violation{Field: "email", Message: "Email is required", Value: s.Email})
	case len(s.Email) > MaxEmailLength:
		out = append(out, Violation{Field: "email", Message: "Email address is too long", Value: s.Email})
	case NormalizeEmail(s.Email) != s.Email:
		out = append(out, Violation{Field: "email", Message: "Email must be stored in normalized form", Value: s.Email})
	}

	if s.Phone != nil && utf8.RuneCountInString(*s.Phone) > MaxPhoneLength {
		out = append(out, Violation{Field: "phone", Message: "Phone number is too long", Value: *s.Phone})
	}
	if s.LinkedinProfile != nil && utf8.RuneCountInString(*s.LinkedinProfile) > MaxProfileURLLength {
		out = append(out, Violation{Field: "linkedinProfile", Message: "URL is too long", Value: *s.LinkedinProfile})
	}

	if s.Message == "" {
		out = append(out, Violation{Field: "message", Message: "Message is required", Value: s.Message})
	} else if utf8.RuneCountInString(s.Message) > MaxStoredMessageLength {
		out = append(out, Violation{Field: "message", Message: "Message is too long", Value: s.Message})
	}

	if !s.Status.Valid() {
		out = append(out, Violation{Field: "status", Message: "Status must be one of new, read, replied, archived", Value: string(s.Status)})
	}

	return out
}

func orUnknown(v string) string {
	if v == "" {
		return UnknownProvenance
	}
	return v
}

func truncate(v string, max int) string {
	if utf8.RuneCountInString(v) <= max {
		return v
	}
	return string([]rune(v)[:max])
}
