package adapter

import (
	"context"
	"net/http"
)

// Request 统一的调用请求形状，由调度器填好再交给适配器
type Request struct {
	Endpoint     string // Gemini 为含 %s 模型占位的模板
	APIKey       string
	Model        string
	SystemPrompt string
	Prompt       string
	Temperature  *float64
	MaxTokens    int
}

// Result 单次上游调用的结构化结果
// API 层面的失败（非 2xx、响应不可解析）不作为 error 返回，
// 完整响应体保留给错误分类器做正则匹配
type Result struct {
	OK     bool
	Text   string
	Status int
	Body   string
}

// ProviderAdapter 提供商协议适配接口
// 返回 error 仅限传输层故障（DNS、连接、超时），由调度器按 timeout 分类兜底
type ProviderAdapter interface {
	Call(ctx context.Context, client *http.Client, req Request) (*Result, error)
}
