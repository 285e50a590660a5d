package httptransport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/backend/internal/domain"
)

func TestContactPayload_Input(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected domain.SubmissionInput
	}{
		{
			name:     "字符串原样保留",
			body:     `{"name":" Ada ","email":"ada@example.com","message":"hello there"}`,
			expected: domain.SubmissionInput{Name: " Ada ", Email: "ada@example.com", Message: "hello there"},
		},
		{
			name:     "数字与布尔取原文",
			body:     `{"name":123,"phone":5551234567,"message":true}`,
			expected: domain.SubmissionInput{Name: "123", Phone: "5551234567", Message: "true"},
		},
		{
			name:     "null 视为缺失",
			body:     `{"name":null,"linkedinProfile":null}`,
			expected: domain.SubmissionInput{},
		},
		{
			name:     "数组与对象取原文",
			body:     `{"email":["a@b.com"],"message":{"text":"hi"}}`,
			expected: domain.SubmissionInput{Email: `["a@b.com"]`, Message: `{"text":"hi"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload contactPayload
			require.NoError(t, json.Unmarshal([]byte(tt.body), &payload))
			assert.Equal(t, tt.expected, payload.input())
		})
	}
}
