package core

import (
	"sync"

	"gorm.io/gorm"

	"llm-orchestrator/models"
)

// 固定状态 Key
const (
	StateKeyQuota  = "llm_quota"
	StateKeyHealth = "llm_provider_health"
)

// StateStore 抽象持久化状态存取 (依赖注入，便于测试)
// 配额/健康记录以 JSON blob 形式挂在固定 Key 下
type StateStore interface {
	// Get 返回 Key 对应的 JSON 内容，不存在时 ok=false
	Get(key string) (value []byte, ok bool, err error)

	// Set 覆盖写入 Key 对应的 JSON 内容
	Set(key string, value []byte) error
}

// DBStateStore 基于 gorm 的持久化实现
type DBStateStore struct {
	db *gorm.DB
}

func NewDBStateStore(db *gorm.DB) *DBStateStore {
	return &DBStateStore{db: db}
}

func (s *DBStateStore) Get(key string) ([]byte, bool, error) {
	var blob models.StateBlob
	err := s.db.Where("key = ?", key).First(&blob).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(blob.Value), true, nil
}

func (s *DBStateStore) Set(key string, value []byte) error {
	// 先查后写 (Robust Upsert)，与并发写入者之间接受最后写入胜出
	var blob models.StateBlob
	err := s.db.Where("key = ?", key).First(&blob).Error
	if err == gorm.ErrRecordNotFound {
		return s.db.Create(&models.StateBlob{Key: key, Value: string(value)}).Error
	}
	if err != nil {
		return err
	}
	blob.Value = string(value)
	return s.db.Save(&blob).Error
}

// MemoryStateStore 内存实现 (测试用)
type MemoryStateStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{values: make(map[string][]byte)}
}

func (s *MemoryStateStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (s *MemoryStateStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[key] = cp
	return nil
}
