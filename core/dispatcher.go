package core

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"llm-orchestrator/core/adapter"
	"llm-orchestrator/models"
)

// 重试预算与退避参数
const (
	maxTotalRetries       = 5 // 整次调用的全局尝试上限
	maxRetriesPerProvider = 2 // 单提供商的尝试上限

	backoffBase   = 500 * time.Millisecond
	backoffFactor = 1.5
	backoffCap    = 5 * time.Second
	backoffJitter = 200 * time.Millisecond

	// 全部失败后、最后一次补救尝试前的固定停顿
	rescuePause = 2 * time.Second
)

// AllProvidersFailedError 终态失败：唯一对调用方可见的错误
// 携带按顺序累积的每提供商失败摘要，供诊断使用
type AllProvidersFailedError struct {
	Attempts []models.CallAttempt
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Status > 0 {
			parts = append(parts, fmt.Sprintf("%s (%s, status %d)", a.Provider, a.ErrorKind, a.Status))
		} else {
			parts = append(parts, fmt.Sprintf("%s (%s)", a.Provider, a.ErrorKind))
		}
	}
	return "all providers failed: [" + strings.Join(parts, "; ") + "]"
}

// FriendlyMessage 面向终端用户的文案，与技术细节分离
func (e *AllProvidersFailedError) FriendlyMessage() string {
	return "The assistant is temporarily unavailable. Please try again in a moment."
}

// CallOptions 调用选项
type CallOptions struct {
	Tier         models.Tier
	SystemPrompt string
	Temperature  *float64
	MaxTokens    int
}

// Dispatcher 调用调度器：编排 资格过滤 → 适配器调用 → 分类 → 重试/转移
type Dispatcher struct {
	registry *Registry
	quota    *QuotaTracker
	health   *HealthTracker
	client   *http.Client
	logger   *logrus.Logger

	adapters      map[Protocol]adapter.ProviderAdapter
	attemptLogger *AttemptLogger // 可选的审计落库

	// 注入休眠，测试时替换避免真实等待
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(
	registry *Registry,
	quota *QuotaTracker,
	health *HealthTracker,
	client *http.Client,
	logger *logrus.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		quota:    quota,
		health:   health,
		client:   client,
		logger:   logger,
		adapters: map[Protocol]adapter.ProviderAdapter{
			ProtocolChat:   adapter.NewChatAdapter(),
			ProtocolGemini: adapter.NewGeminiAdapter(),
		},
		sleep: sleepCtx,
	}
}

// SetAttemptLogger 挂接审计日志（可选）
func (d *Dispatcher) SetAttemptLogger(l *AttemptLogger) {
	d.attemptLogger = l
}

// sleepCtx 可被 ctx 取消的休眠
func sleepCtx(ctx context.Context, dur time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dur):
		return nil
	}
}

// retryDelay 指数退避（不含抖动）：base × factor^attempt，封顶 backoffCap
func retryDelay(attempt int) time.Duration {
	d := time.Duration(float64(backoffBase) * math.Pow(backoffFactor, float64(attempt)))
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// jitteredDelay 叠加 ±backoffJitter 以内的随机抖动
func jitteredDelay(attempt int) time.Duration {
	d := retryDelay(attempt)
	j := time.Duration(rand.Int63n(int64(2*backoffJitter))) - backoffJitter
	if d+j < 0 {
		return 0
	}
	return d + j
}

// EligibleProviders 按固定优先级过滤：凭证可用 + 当日剩余配额 > 0 + 不在冷却窗口
// 每次顶层调用重新计算，绝不缓存——健康/配额状态随时在变
func (d *Dispatcher) EligibleProviders() []ProviderSpec {
	out := make([]ProviderSpec, 0)
	for _, spec := range d.registry.Configured() {
		if d.quota.Remaining(spec.Name) <= 0 {
			continue
		}
		if d.health.InCooldown(spec.Name) {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// CallLLM 核心契约：跨多个异构提供商透明路由一次逻辑调用
// 中途失败对调用方完全静默，只有全部耗尽才返回 AllProvidersFailedError
func (d *Dispatcher) CallLLM(ctx context.Context, prompt string, opts CallOptions) (*models.CallResult, error) {
	requestID := fmt.Sprintf("%d", time.Now().UnixNano())
	eligible := d.EligibleProviders()

	d.logger.Infof("🚀 CallLLM: ID=%s | Tier=%s | Eligible=%d", requestID, tierOrDefault(opts.Tier), len(eligible))

	attempts := make([]models.CallAttempt, 0, maxTotalRetries+1)
	totalAttempts := 0

providerLoop:
	for _, spec := range eligible {
		for attempt := 0; attempt < maxRetriesPerProvider; attempt++ {
			if totalAttempts >= maxTotalRetries {
				d.logger.Warnf("⛔ Global attempt budget (%d) reached", maxTotalRetries)
				break providerLoop
			}
			totalAttempts++

			result, kind, ok := d.tryProvider(ctx, requestID, &spec, prompt, opts, totalAttempts, false, &attempts)
			if ok {
				return result, nil
			}

			// 分类器判定可原地重试且预算未耗尽：退避后再试同一家
			if kind != nil && kind.RetrySameProvider && attempt+1 < maxRetriesPerProvider && totalAttempts < maxTotalRetries {
				delay := jitteredDelay(totalAttempts - 1)
				d.logger.Infof("🔄 Retrying [%s] in %s (%s)", spec.Name, delay, kind.Name)
				if err := d.sleep(ctx, delay); err != nil {
					return nil, err
				}
				continue
			}

			// 否则切到下一家
			continue providerLoop
		}
	}

	// 所有常规途径失败：固定停顿后，对当前最高优先级的可用提供商做一次最后补救
	// 刻意选最高优先级而非健康分最好的一家，保持可观察的重试顺序语义
	d.logger.Warnf("💀 All regular attempts exhausted (ID=%s), rescue attempt after %s", requestID, rescuePause)
	if err := d.sleep(ctx, rescuePause); err != nil {
		return nil, err
	}

	if rescue := d.EligibleProviders(); len(rescue) > 0 {
		spec := rescue[0]
		d.logger.Infof("🆘 Rescue attempt: [%s]", spec.Name)
		result, _, ok := d.tryProvider(ctx, requestID, &spec, prompt, opts, totalAttempts+1, true, &attempts)
		if ok {
			return result, nil
		}
	}

	terminal := &AllProvidersFailedError{Attempts: attempts}
	d.logger.Errorf("💀 Terminal failure (ID=%s): %v", requestID, terminal)
	return nil, terminal
}

// tryProvider 单次尝试：适配器调用 + 结果处理
// 成功时完成配额递增与健康恢复；失败时记录健康与审计，返回分类结果
func (d *Dispatcher) tryProvider(
	ctx context.Context,
	requestID string,
	spec *ProviderSpec,
	prompt string,
	opts CallOptions,
	attemptNo int,
	rescue bool,
	attempts *[]models.CallAttempt,
) (*models.CallResult, *ErrorKind, bool) {
	model := spec.ModelForTier(opts.Tier)
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 || maxTokens > spec.MaxTokens {
		maxTokens = spec.MaxTokens
	}

	d.logger.Infof("🎯 Attempt %d: [%s] model=%s", attemptNo, spec.Name, model)
	start := time.Now()

	prov := d.adapters[spec.Protocol]
	res, err := prov.Call(ctx, d.client, adapter.Request{
		Endpoint:     spec.Endpoint,
		APIKey:       d.registry.Credential(spec.Name),
		Model:        model,
		SystemPrompt: opts.SystemPrompt,
		Prompt:       prompt,
		Temperature:  opts.Temperature,
		MaxTokens:    maxTokens,
	})
	latency := time.Since(start)

	if err == nil && res.OK {
		// 唯一的成功出口
		d.quota.Increment(spec.Name)
		d.health.RecordSuccess(spec.Name)
		d.logAttempt(requestID, spec, model, opts.Tier, true, res.Status, "", "", latency)
		d.logger.Infof("✅ Success: [%s] | Latency: %.0fms", spec.Name, latency.Seconds()*1000)
		return &models.CallResult{Text: res.Text, Provider: string(spec.Name), Model: model}, nil, true
	}

	// 失败路径：先拿到状态码与错误文本，再走分类器
	var status int
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	} else {
		status = res.Status
		errMsg = res.Body
	}

	kind := Classify(status, errMsg)
	if err != nil && kind == nil {
		// 传输层异常兜底走 timeout/network 分类
		kind = KindByName(KindTimeout)
	}

	kindName := "unclassified"
	if kind != nil {
		kindName = kind.Name
	}

	d.health.RecordFailure(spec.Name, truncateErr(errMsg), kind)
	*attempts = append(*attempts, models.CallAttempt{
		Provider:  string(spec.Name),
		Model:     model,
		Status:    status,
		ErrorKind: kindName,
		ErrorMsg:  truncateErr(errMsg),
		Rescue:    rescue,
		Timestamp: time.Now(),
	})
	d.logAttempt(requestID, spec, model, opts.Tier, false, status, kindName, truncateErr(errMsg), latency)
	d.logger.Warnf("⚠️ Attempt %d Failed: [%s] %d %s", attemptNo, spec.Name, status, kindName)

	return nil, kind, false
}

// logAttempt 审计落库（异步、尽力而为）
func (d *Dispatcher) logAttempt(requestID string, spec *ProviderSpec, model string, tier models.Tier, success bool, status int, kind, errMsg string, latency time.Duration) {
	if d.attemptLogger == nil {
		return
	}
	d.attemptLogger.Log(&models.CallAttemptLog{
		CreatedAt: time.Now(),
		RequestID: requestID,
		Provider:  string(spec.Name),
		Model:     model,
		Tier:      string(tierOrDefault(tier)),
		Success:   success,
		Status:    status,
		ErrorKind: kind,
		ErrorMsg:  errMsg,
		Duration:  latency.Milliseconds(),
	})
}

// KindByName 按名称取分类条目，未知名称返回 nil
func KindByName(name string) *ErrorKind {
	for i := range errorKinds {
		if errorKinds[i].Name == name {
			return &errorKinds[i]
		}
	}
	return nil
}

func tierOrDefault(t models.Tier) models.Tier {
	if t == "" {
		return models.TierFast
	}
	return t
}

// truncateErr 错误文本截断，防止健康记录和日志膨胀
func truncateErr(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
