package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"llm-orchestrator/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	assert.NoError(t, err)
	assert.NoError(t, models.AutoMigrate(db))
	return db
}

func TestDBStateStoreRoundTrip(t *testing.T) {
	store := NewDBStateStore(setupTestDB(t))

	// 不存在的 Key
	_, ok, err := store.Get("missing")
	assert.NoError(t, err)
	assert.False(t, ok)

	// 写入后读回
	assert.NoError(t, store.Set(StateKeyQuota, []byte(`{"date":"2026-08-23"}`)))
	v, ok, err := store.Get(StateKeyQuota)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"date":"2026-08-23"}`, string(v))

	// 覆盖写入不产生重复行
	assert.NoError(t, store.Set(StateKeyQuota, []byte(`{"date":"2026-08-24"}`)))
	v, _, _ = store.Get(StateKeyQuota)
	assert.Equal(t, `{"date":"2026-08-24"}`, string(v))

	var count int64
	store.db.Model(&models.StateBlob{}).Where("key = ?", StateKeyQuota).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestDBStateStoreKeysIsolated(t *testing.T) {
	store := NewDBStateStore(setupTestDB(t))

	assert.NoError(t, store.Set(StateKeyQuota, []byte(`{"a":1}`)))
	assert.NoError(t, store.Set(StateKeyHealth, []byte(`{"b":2}`)))

	v, _, _ := store.Get(StateKeyQuota)
	assert.Equal(t, `{"a":1}`, string(v))
	v, _, _ = store.Get(StateKeyHealth)
	assert.Equal(t, `{"b":2}`, string(v))
}

func TestMemoryStateStoreCopies(t *testing.T) {
	store := NewMemoryStateStore()

	buf := []byte(`{"x":1}`)
	assert.NoError(t, store.Set("k", buf))

	// 调用方篡改自己的切片不影响已存内容
	buf[2] = 'y'
	v, ok, _ := store.Get("k")
	assert.True(t, ok)
	assert.Equal(t, `{"x":1}`, string(v))

	// 读出的切片同样是副本
	v[2] = 'z'
	v2, _, _ := store.Get("k")
	assert.Equal(t, `{"x":1}`, string(v2))
}
