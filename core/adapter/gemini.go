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

// GeminiAdapter Google Gemini 协议适配器
// 没有原生 system role：System Prompt 拍扁进单条 user 文本
type GeminiAdapter struct{}

func NewGeminiAdapter() *GeminiAdapter {
	return &GeminiAdapter{}
}

// flattenPrompt 把 System Prompt 和用户输入拼成一条格式化文本
func flattenPrompt(systemPrompt, prompt string) string {
	if systemPrompt == "" {
		return prompt
	}
	return fmt.Sprintf("[Instructions]\n%s\n\n[Request]\n%s", systemPrompt, prompt)
}

func (a *GeminiAdapter) Call(ctx context.Context, client *http.Client, req Request) (*Result, error) {
	body := GeminiRequest{
		Contents: []GeminiContent{
			{
				Role:  "user",
				Parts: []GeminiPart{{Text: flattenPrompt(req.SystemPrompt, req.Prompt)}},
			},
		},
	}
	if req.Temperature != nil || req.MaxTokens > 0 {
		body.GenerationConfig = &GeminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}

	reqBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Endpoint 是模板：模型名拼进路径，Key 走 query 参数
	targetURL := fmt.Sprintf(req.Endpoint, req.Model) + "?key=" + req.APIKey

	httpReq, err := http.NewRequestWithContext(ctx, "POST", targetURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "LLM-Orchestrator/1.0")

	resp, err := client.Do(httpReq)
	if err != nil {
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

	var parsed GeminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Candidates) == 0 {
		return &Result{Status: resp.StatusCode, Body: string(respBody)}, nil
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return &Result{Status: resp.StatusCode, Body: string(respBody)}, nil
	}

	return &Result{OK: true, Text: text, Status: resp.StatusCode}, nil
}
