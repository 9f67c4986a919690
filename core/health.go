package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"llm-orchestrator/models"
)

// 健康分调整步长与熔断阈值
const (
	healthScoreReward     = 0.2
	healthScorePenalty    = 0.25
	unhealthyFailureCount = 3
)

// healthRecord 单提供商的持久化健康状态
type healthRecord struct {
	Healthy       bool       `json:"healthy"`
	Failures      int        `json:"failures"`
	Score         float64    `json:"score"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorAt   *time.Time `json:"last_error_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// newHealthRecord 首次观察到的提供商：满分、健康
func newHealthRecord() *healthRecord {
	return &healthRecord{Healthy: true, Score: 1.0}
}

type healthBlob map[Provider]*healthRecord

// HealthTracker 提供商滚动健康状态
// 每次变更后落盘，每次资格检查重新读取——不信任跨调用的内存缓存，
// 其他进程（标签页）可能同时在写同一份存储
type HealthTracker struct {
	store  StateStore
	logger *logrus.Logger

	mu      sync.Mutex
	nowFunc func() time.Time
}

func NewHealthTracker(store StateStore, logger *logrus.Logger) *HealthTracker {
	return &HealthTracker{
		store:   store,
		logger:  logger,
		nowFunc: time.Now,
	}
}

func (h *HealthTracker) load() healthBlob {
	raw, ok, err := h.store.Get(StateKeyHealth)
	if err != nil {
		h.logger.Warnf("Health state read failed, treating as fresh: %v", err)
		return make(healthBlob)
	}
	if !ok {
		return make(healthBlob)
	}

	var blob healthBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		h.logger.Warnf("Health state corrupted, resetting: %v", err)
		return make(healthBlob)
	}
	return blob
}

func (h *HealthTracker) persist(blob healthBlob) {
	raw, err := json.Marshal(blob)
	if err != nil {
		h.logger.Errorf("Health state marshal failed: %v", err)
		return
	}
	if err := h.store.Set(StateKeyHealth, raw); err != nil {
		h.logger.Warnf("Health state write failed (non-fatal): %v", err)
	}
}

// RecordSuccess 成功：连败清零、加分、恢复健康、清空错误字段
func (h *HealthTracker) RecordSuccess(p Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()

	blob := h.load()
	rec, ok := blob[p]
	if !ok {
		rec = newHealthRecord()
		blob[p] = rec
	}

	rec.Failures = 0
	rec.Score += healthScoreReward
	if rec.Score > 1.0 {
		rec.Score = 1.0
	}
	rec.Healthy = true
	rec.LastError = ""
	rec.LastErrorAt = nil
	rec.CooldownUntil = nil

	h.persist(blob)
}

// RecordFailure 失败：连败 +1、扣分，达到阈值翻转为不健康
// kind 为 nil 表示未分类错误，不设置冷却
func (h *HealthTracker) RecordFailure(p Provider, errMsg string, kind *ErrorKind) {
	h.mu.Lock()
	defer h.mu.Unlock()

	blob := h.load()
	rec, ok := blob[p]
	if !ok {
		rec = newHealthRecord()
		blob[p] = rec
	}

	now := h.nowFunc()
	rec.Failures++
	rec.Score -= healthScorePenalty
	if rec.Score < 0 {
		rec.Score = 0
	}
	rec.LastError = errMsg
	rec.LastErrorAt = &now

	if rec.Failures >= unhealthyFailureCount {
		if rec.Healthy {
			h.logger.Warnf("💔 Provider [%s] marked unhealthy after %d consecutive failures", p, rec.Failures)
		}
		rec.Healthy = false
	}

	if kind != nil && kind.Cooldown > 0 {
		until := now.Add(kind.Cooldown)
		rec.CooldownUntil = &until
		h.logger.Infof("🧊 Provider [%s] cooling down for %s (%s)", p, kind.Cooldown, kind.Name)
	}

	h.persist(blob)
}

// InCooldown 冷却窗口内的提供商不参与调度；过期即自动恢复，无需其他状态变更
func (h *HealthTracker) InCooldown(p Provider) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	blob := h.load()
	rec, ok := blob[p]
	if !ok || rec.CooldownUntil == nil {
		return false
	}
	return h.nowFunc().Before(*rec.CooldownUntil)
}

// Reset 管理操作：清空提供商的健康记录
func (h *HealthTracker) Reset(p Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()

	blob := h.load()
	blob[p] = newHealthRecord()
	h.persist(blob)
	h.logger.Infof("Provider [%s] health manually reset", p)
}

// Status 返回全部已知提供商的健康快照（管理接口）
func (h *HealthTracker) Status(registry *Registry) []models.ProviderHealth {
	h.mu.Lock()
	blob := h.load()
	h.mu.Unlock()

	out := make([]models.ProviderHealth, 0, len(registry.All()))
	for _, spec := range registry.All() {
		rec, ok := blob[spec.Name]
		if !ok {
			rec = newHealthRecord()
		}
		out = append(out, models.ProviderHealth{
			Provider:      string(spec.Name),
			Healthy:       rec.Healthy,
			Failures:      rec.Failures,
			Score:         rec.Score,
			LastError:     rec.LastError,
			LastErrorAt:   rec.LastErrorAt,
			CooldownUntil: rec.CooldownUntil,
		})
	}
	return out
}
