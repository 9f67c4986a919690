package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ChatAdapter OpenAI 风格的 chat completions 协议
// groq / cerebras / mistral 共用，差异只在 Endpoint 和模型名
type ChatAdapter struct{}

func NewChatAdapter() *ChatAdapter {
	return &ChatAdapter{}
}

// chatMessage 消息数组元素
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest 上游请求体
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// chatResponse 上游响应封装
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (a *ChatAdapter) Call(ctx context.Context, client *http.Client, req Request) (*Result, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	reqBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", req.Endpoint, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	httpReq.Header.Set("User-Agent", "LLM-Orchestrator/1.0")

	resp, err := client.Do(httpReq)
	if err != nil {
		// 传输层故障向上传播，调度器负责分类
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Result{Status: resp.StatusCode, Body: string(respBody)}, nil
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Choices) == 0 {
		// 2xx 但响应不可用，按 API 失败处理，body 留给分类器
		return &Result{Status: resp.StatusCode, Body: string(respBody)}, nil
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return &Result{Status: resp.StatusCode, Body: string(respBody)}, nil
	}

	return &Result{OK: true, Text: text, Status: resp.StatusCode}, nil
}
