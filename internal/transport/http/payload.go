package httptransport

import (
	"bytes"
	"encoding/json"

	"portfolio/backend/internal/domain"
)

// contactPayload JSON 请求体
//
// 字段接受任意 JSON 值，非字符串按原文转为字符串后交给校验器，
// 这样类型不符也会以字段错误的形式返回。
type contactPayload struct {
	Name            looseString `json:"name"`
	Email           looseString `json:"email"`
	Phone           looseString `json:"phone"`
	LinkedinProfile looseString `json:"linkedinProfile"`
	Message         looseString `json:"message"`
}

func (p contactPayload) input() domain.SubmissionInput {
	return domain.SubmissionInput{
		Name:            string(p.Name),
		Email:           string(p.Email),
		Phone:           string(p.Phone),
		LinkedinProfile: string(p.LinkedinProfile),
		Message:         string(p.Message),
	}
}

// looseString 字符串原样保留，null 视为缺失，其余值取 JSON 原文
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	*s = looseString(bytes.TrimSpace(data))
	return nil
}
