package core

import (
	"regexp"
	"time"
)

// ErrorKind 错误分类：固定策略 {原地重试 / 故障转移 / 冷却时长}
type ErrorKind struct {
	Name string

	// 匹配条件：状态码集合 OR 错误文本正则（大小写不敏感），先到先得
	Statuses []int
	Pattern  *regexp.Regexp

	// 策略
	RetrySameProvider bool
	Fallback          bool
	Cooldown          time.Duration
}

// 错误分类名
const (
	KindRateLimited    = "rate_limited"
	KindServerError    = "server_error"
	KindQuotaExhausted = "quota_exhausted"
	KindOverloaded     = "model_overloaded"
	KindUnauthorized   = "unauthorized"
	KindTimeout        = "timeout"
)

// errorKinds 固定优先级匹配表
// quota_exhausted 必须排在 rate_limited 之前：上游的日配额耗尽同样带 429，
// 只能靠 body 文本区分，冷却时长相差两个数量级
var errorKinds = []ErrorKind{
	{
		Name:     KindQuotaExhausted,
		Pattern:  regexp.MustCompile(`(?i)insufficient_quota|exceeded your current quota|quota exceeded|daily limit|billing`),
		Fallback: true,
		Cooldown: time.Hour,
	},
	{
		Name:     KindRateLimited,
		Statuses: []int{429},
		Pattern:  regexp.MustCompile(`(?i)rate limit|too many requests|ratelimit`),
		Fallback: true,
		Cooldown: 60 * time.Second,
	},
	{
		Name:     KindUnauthorized,
		Statuses: []int{401, 403},
		Pattern:  regexp.MustCompile(`(?i)invalid api key|unauthorized|forbidden|permission denied|authentication`),
		Fallback: true,
		Cooldown: 0, // 立刻换下一家的凭证
	},
	{
		Name:              KindOverloaded,
		Statuses:          []int{529},
		Pattern:           regexp.MustCompile(`(?i)overloaded|over capacity|at capacity|model is currently`),
		RetrySameProvider: true,
		Fallback:          true,
		Cooldown:          10 * time.Second,
	},
	{
		Name:              KindTimeout,
		Statuses:          []int{408},
		Pattern:           regexp.MustCompile(`(?i)timeout|timed out|deadline exceeded|connection refused|connection reset|no such host|network|EOF`),
		RetrySameProvider: true,
		Fallback:          true,
		Cooldown:          2 * time.Second,
	},
	{
		Name:              KindServerError,
		Statuses:          []int{500, 502, 503, 504},
		Pattern:           regexp.MustCompile(`(?i)internal server error|bad gateway|service unavailable`),
		RetrySameProvider: true,
		Fallback:          true,
		Cooldown:          5 * time.Second,
	},
}

// Classify 将原始失败 (HTTP 状态 + 错误文本) 映射到错误分类
// 无匹配时返回 nil，调用方按"故障转移、无冷却"处理
func Classify(status int, message string) *ErrorKind {
	for i := range errorKinds {
		k := &errorKinds[i]
		for _, s := range k.Statuses {
			if s == status {
				return k
			}
		}
		if k.Pattern != nil && message != "" && k.Pattern.MatchString(message) {
			return k
		}
	}
	return nil
}
