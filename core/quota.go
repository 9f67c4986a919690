package core

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"llm-orchestrator/models"
)

// quotaBlob 持久化格式：日期 + 每提供商用量
type quotaBlob struct {
	Date  string           `json:"date"` // YYYY-MM-DD
	Usage map[Provider]int `json:"usage"`
}

// QuotaTracker 每日配额跟踪器
// 自然日重置：读到的日期与当天不一致时全部清零，历史计数直接丢弃
type QuotaTracker struct {
	store    StateStore
	registry *Registry
	logger   *logrus.Logger

	// 串行化本进程内的 read-modify-write；跨进程并发接受最终一致
	mu sync.Mutex

	// 注入时钟，测试跨天重置用
	nowFunc func() time.Time
}

// lowQuotaFraction 低于该剩余比例时触发低配额告警
const lowQuotaFraction = 0.1

func NewQuotaTracker(store StateStore, registry *Registry, logger *logrus.Logger) *QuotaTracker {
	return &QuotaTracker{
		store:    store,
		registry: registry,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// load 读取当天的配额记录，日期不符或存储不可用时按全新初始化处理
func (q *QuotaTracker) load() *quotaBlob {
	today := q.nowFunc().Format("2006-01-02")
	fresh := &quotaBlob{Date: today, Usage: make(map[Provider]int)}

	raw, ok, err := q.store.Get(StateKeyQuota)
	if err != nil {
		// 存储故障不致命：当作全新状态继续
		q.logger.Warnf("Quota state read failed, treating as fresh: %v", err)
		return fresh
	}
	if !ok {
		return fresh
	}

	var blob quotaBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		q.logger.Warnf("Quota state corrupted, resetting: %v", err)
		return fresh
	}
	if blob.Date != today {
		// 跨天：清零，不归档
		q.logger.Infof("📅 Quota reset: stored date %s != today %s", blob.Date, today)
		return fresh
	}
	if blob.Usage == nil {
		blob.Usage = make(map[Provider]int)
	}
	return &blob
}

// persist 每次变更后立即落盘，失败只记日志
func (q *QuotaTracker) persist(blob *quotaBlob) {
	raw, err := json.Marshal(blob)
	if err != nil {
		q.logger.Errorf("Quota state marshal failed: %v", err)
		return
	}
	if err := q.store.Set(StateKeyQuota, raw); err != nil {
		q.logger.Warnf("Quota state write failed (non-fatal): %v", err)
	}
}

// Increment 成功调用后对提供商用量 +1
func (q *QuotaTracker) Increment(p Provider) {
	q.mu.Lock()
	defer q.mu.Unlock()

	blob := q.load()
	blob.Usage[p]++
	q.persist(blob)
}

// Remaining 返回提供商当天的剩余额度
func (q *QuotaTracker) Remaining(p Provider) int {
	spec, ok := q.registry.Spec(p)
	if !ok {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	blob := q.load()
	rem := spec.DailyQuota - blob.Usage[p]
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Status 返回全部提供商的配额状态（管理接口，非热路径）
func (q *QuotaTracker) Status() []models.QuotaStatus {
	q.mu.Lock()
	blob := q.load()
	q.mu.Unlock()

	out := make([]models.QuotaStatus, 0, len(q.registry.All()))
	for _, spec := range q.registry.All() {
		used := blob.Usage[spec.Name]
		rem := spec.DailyQuota - used
		if rem < 0 {
			rem = 0
		}
		out = append(out, models.QuotaStatus{
			Provider:  string(spec.Name),
			Used:      used,
			Limit:     spec.DailyQuota,
			Remaining: rem,
		})
	}
	return out
}

// Warning 低配额告警：所有已配置提供商的剩余额度都低于水位线时返回提示文案
func (q *QuotaTracker) Warning() string {
	configured := q.registry.Configured()
	if len(configured) == 0 {
		return ""
	}

	q.mu.Lock()
	blob := q.load()
	q.mu.Unlock()

	for _, spec := range configured {
		rem := spec.DailyQuota - blob.Usage[spec.Name]
		if float64(rem) > float64(spec.DailyQuota)*lowQuotaFraction {
			return ""
		}
	}
	return "Daily free-tier quota is nearly exhausted on all providers; calls may start failing until midnight reset"
}
