package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// 各家上游真实返回过的错误体，分类器必须认得
func TestClassifyLiteralUpstreamBodies(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind string
	}{
		{
			name:     "openai insufficient quota",
			status:   429,
			body:     `{"error":{"message":"You exceeded your current quota, please check your plan and billing details.","type":"insufficient_quota"}}`,
			wantKind: KindQuotaExhausted,
		},
		{
			name:     "groq rate limit",
			status:   429,
			body:     `{"error":{"message":"Rate limit reached for model llama-3.1-8b-instant","type":"requests"}}`,
			wantKind: KindRateLimited,
		},
		{
			name:     "plain 429 no body",
			status:   429,
			body:     "",
			wantKind: KindRateLimited,
		},
		{
			name:     "anthropic overloaded",
			status:   529,
			body:     `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			wantKind: KindOverloaded,
		},
		{
			name:     "overloaded by message only",
			status:   503,
			body:     "The model is currently overloaded with other requests",
			wantKind: KindOverloaded,
		},
		{
			name:     "invalid api key",
			status:   401,
			body:     `{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`,
			wantKind: KindUnauthorized,
		},
		{
			name:     "forbidden",
			status:   403,
			body:     "Forbidden",
			wantKind: KindUnauthorized,
		},
		{
			name:     "bad gateway",
			status:   502,
			body:     "<html>502 Bad Gateway</html>",
			wantKind: KindServerError,
		},
		{
			name:     "service unavailable",
			status:   503,
			body:     "Service Unavailable",
			wantKind: KindServerError,
		},
		{
			name:     "transport error text",
			status:   0,
			body:     `Post "https://api.groq.com": dial tcp: lookup api.groq.com: no such host`,
			wantKind: KindTimeout,
		},
		{
			name:     "deadline exceeded",
			status:   0,
			body:     "context deadline exceeded",
			wantKind: KindTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind := Classify(tt.status, tt.body)
			assert.NotNil(t, kind)
			assert.Equal(t, tt.wantKind, kind.Name)
		})
	}
}

func TestClassifyUnmatchedReturnsNil(t *testing.T) {
	assert.Nil(t, Classify(418, "I'm a teapot"))
	assert.Nil(t, Classify(0, ""))
	assert.Nil(t, Classify(400, "invalid json in request"))
}

// 日配额耗尽和普通限流都走 429，必须靠 body 区分出来
func TestClassifyQuotaBeforeRateLimit(t *testing.T) {
	kind := Classify(429, "Daily limit exceeded for free tier")
	assert.Equal(t, KindQuotaExhausted, kind.Name)
	assert.Equal(t, time.Hour, kind.Cooldown)

	kind = Classify(429, "slow down")
	assert.Equal(t, KindRateLimited, kind.Name)
	assert.Equal(t, 60*time.Second, kind.Cooldown)
}

func TestClassifyPolicies(t *testing.T) {
	// 限流和配额耗尽：不原地重试，转移 + 冷却
	rl := KindByName(KindRateLimited)
	assert.False(t, rl.RetrySameProvider)
	assert.True(t, rl.Fallback)
	assert.Equal(t, 60*time.Second, rl.Cooldown)

	qe := KindByName(KindQuotaExhausted)
	assert.False(t, qe.RetrySameProvider)
	assert.Equal(t, time.Hour, qe.Cooldown)

	// 服务端错误和过载：原地重试，短冷却
	se := KindByName(KindServerError)
	assert.True(t, se.RetrySameProvider)
	assert.Equal(t, 5*time.Second, se.Cooldown)

	ov := KindByName(KindOverloaded)
	assert.True(t, ov.RetrySameProvider)
	assert.Equal(t, 10*time.Second, ov.Cooldown)

	// 鉴权失败：立刻换下一家，零冷却
	ua := KindByName(KindUnauthorized)
	assert.False(t, ua.RetrySameProvider)
	assert.Equal(t, time.Duration(0), ua.Cooldown)

	// 超时：原地重试，2s 冷却
	to := KindByName(KindTimeout)
	assert.True(t, to.RetrySameProvider)
	assert.Equal(t, 2*time.Second, to.Cooldown)
}
