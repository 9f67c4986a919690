package models

import "time"

// Tier 请求的质量档位
type Tier string

const (
	TierFast      Tier = "fast"
	TierReasoning Tier = "reasoning"
)

// Valid 检查档位是否合法，空值按 fast 处理
func (t Tier) Valid() bool {
	return t == "" || t == TierFast || t == TierReasoning
}

// CallRequest 调用请求 (POST /v1/call)
type CallRequest struct {
	Prompt       string   `json:"prompt" binding:"required"`
	Tier         Tier     `json:"tier,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    *int     `json:"max_tokens,omitempty"`
}

// CallResult 成功结果：文本 + 提供商归属
type CallResult struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// CallAttempt 单次尝试的瞬态结果（不落库，终态错误里整体携带）
type CallAttempt struct {
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Status    int       `json:"status,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Rescue    bool      `json:"rescue,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// QuotaStatus 单个提供商的配额状态
type QuotaStatus struct {
	Provider  string `json:"provider"`
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// ProviderHealth 单个提供商的健康状态
type ProviderHealth struct {
	Provider      string     `json:"provider"`
	Healthy       bool       `json:"healthy"`
	Failures      int        `json:"failures"`
	Score         float64    `json:"score"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorAt   *time.Time `json:"last_error_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Message  string        `json:"message"`
	Type     string        `json:"type"`
	Attempts []CallAttempt `json:"attempts,omitempty"`
}

// APIResponse 通用API响应
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(message string, data interface{}) *APIResponse {
	return &APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(message string) *APIResponse {
	return &APIResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
}

// MaskAPIKey 脱敏API Key
func MaskAPIKey(key string) string {
	if key == "" {
		return "***"
	}

	if len(key) <= 4 {
		return key[:1] + "***"
	}

	if len(key) <= 8 {
		return key[:2] + "***" + key[len(key)-2:]
	}

	return key[:3] + "***" + key[len(key)-4:]
}
