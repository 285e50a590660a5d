package domain

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// 字段长度限制
const (
	MinNameLength       = 2
	MaxNameLength       = 100
	MaxEmailLength      = 254 // RFC 5321 路径上限
	MaxPhoneLength      = 20
	MaxProfileURLLength = 500
	MinMessageLength    = 10
	MaxMessageLength    = 1000

	minPhoneDigits = 7
	maxPhoneDigits = 15 // E.164
)

var (
	// 姓名只允许字母（含 Unicode 字母及组合符号）与空白
	personNameRegex = regexp.MustCompile(`^[\p{L}\p{M}\s]+$`)

	// 通用电话号码格式：可选 + 号，数字之间允许空格、括号、连字符、点
	phoneRegex = regexp.MustCompile(`^\+?[0-9(][0-9 ()\-.]*[0-9]$`)

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		`"`, "&quot;",
		"'", "&#x27;",
		"<", "&lt;",
		">", "&gt;",
		"/", "&#x2F;",
		`\`, "&#x5C;",
		"`", "&#96;",
	)

	contactValidator = newContactValidator()
)

// Violation 单个字段的校验失败记录
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value"`
}

// ValidationError 汇总一次请求中的所有字段错误
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		fields = append(fields, v.Field)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

// AsValidationError 提取 ValidationError
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// contactForm 规范化后参与校验的表单
type contactForm struct {
	Name            string `json:"name" validate:"required,min=2,max=100,personname"`
	Email           string `json:"email" validate:"required,email,max=254"`
	Phone           string `json:"phone" validate:"omitempty,phone,max=20"`
	LinkedinProfile string `json:"linkedinProfile" validate:"omitempty,http_url,max=500"`
	Message         string `json:"message" validate:"required,min=10,max=1000"`
}

// 字段 -> 校验标签 -> 提示信息
var violationMessages = map[string]map[string]string{
	"name": {
		"required":   "Name is required",
		"min":        "Name must be between 2 and 100 characters",
		"max":        "Name must be between 2 and 100 characters",
		"personname": "Name can only contain letters and spaces",
	},
	"email": {
		"required": "Email is required",
		"email":    "Please provide a valid email address",
		"max":      "Email address is too long",
	},
	"phone": {
		"phone": "Please provide a valid phone number",
		"max":   "Phone number is too long",
	},
	"linkedinProfile": {
		"http_url": "Please provide a valid URL for LinkedIn/Naukri profile",
		"max":      "URL is too long",
	},
	"message": {
		"required": "Message is required",
		"min":      "Message must be between 10 and 1000 characters",
		"max":      "Message must be between 10 and 1000 characters",
	},
}

func newContactValidator() *validator.Validate {
	v := validator.New()

	// 使用 JSON 字段名作为错误字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personNameRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return IsPhoneNumber(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// ValidateSubmission 校验并规范化联系表单
//
// 所有字段一次性校验，返回全部字段错误，不在第一个错误处中断。
// 该函数无 I/O、结果确定，畸形输入只会产生 Violation，不会 panic。
//
// 返回值:
//   - Submission: 规范化后的提交（仅在无错误时有意义，ID/CreatedAt 留空由存储层填充）
//   - []Violation: 字段错误列表，按 name、email、phone、linkedinProfile、message 顺序
func ValidateSubmission(in SubmissionInput) (Submission, []Violation) {
	form := contactForm{
		Name:            strings.TrimSpace(in.Name),
		Email:           NormalizeEmail(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
		LinkedinProfile: strings.TrimSpace(in.LinkedinProfile),
		Message:         strings.TrimSpace(in.Message),
	}

	var violations []Violation
	if err := contactValidator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			// 仅在校验器本身配置错误时出现
			return Submission{}, []Violation{{Field: "form", Message: err.Error()}}
		}
		for _, fe := range fieldErrs {
			violations = append(violations, Violation{
				Field:   fe.Field(),
				Message: violationMessage(fe.Field(), fe.Tag()),
				Value:   fmt.Sprint(fe.Value()),
			})
		}
		return Submission{}, violations
	}

	sub := Submission{
		Name:    form.Name,
		Email:   form.Email,
		Message: EscapeHTML(form.Message),
		Status:  StatusNew,
	}
	if form.Phone != "" {
		phone := form.Phone
		sub.Phone = &phone
	}
	if form.LinkedinProfile != "" {
		profile := form.LinkedinProfile
		sub.LinkedinProfile = &profile
	}
	return sub, nil
}

func violationMessage(field, tag string) string {
	if msg, ok := violationMessages[field][tag]; ok {
		return msg
	}
	return fmt.Sprintf("Invalid value for %s", field)
}

// NormalizeEmail 去除首尾空白并转换为小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsPhoneNumber 通用电话号码校验，数字位数需在 7 到 15 之间
func IsPhoneNumber(phone string) bool {
	if !phoneRegex.MatchString(phone) {
		return false
	}
	digits := 0
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= minPhoneDigits && digits <= maxPhoneDigits
}

// EscapeHTML 转义 HTML 不安全字符，用于存储与展示
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
