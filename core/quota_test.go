package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testRegistry() *Registry {
	return NewRegistryWithCredentials(map[Provider]string{
		ProviderGroq:     "gsk_test_aaaabbbb",
		ProviderCerebras: "csk-test-aaaabbbb",
	}, testLogger())
}

func TestQuotaIncrementPersists(t *testing.T) {
	store := NewMemoryStateStore()
	q := NewQuotaTracker(store, testRegistry(), testLogger())

	q.Increment(ProviderGroq)
	q.Increment(ProviderGroq)
	q.Increment(ProviderCerebras)

	// 新的 Tracker 读同一份存储，计数必须还在
	q2 := NewQuotaTracker(store, testRegistry(), testLogger())
	for _, s := range q2.Status() {
		switch Provider(s.Provider) {
		case ProviderGroq:
			assert.Equal(t, 2, s.Used)
			assert.Equal(t, 14400-2, s.Remaining)
		case ProviderCerebras:
			assert.Equal(t, 1, s.Used)
		}
	}
}

func TestQuotaCalendarDayReset(t *testing.T) {
	store := NewMemoryStateStore()
	q := NewQuotaTracker(store, testRegistry(), testLogger())

	day1 := time.Date(2026, 8, 22, 23, 50, 0, 0, time.UTC)
	q.nowFunc = func() time.Time { return day1 }

	q.Increment(ProviderGroq)
	q.Increment(ProviderGroq)
	assert.Equal(t, 14400-2, q.Remaining(ProviderGroq))

	// 当天内不重置
	q.nowFunc = func() time.Time { return day1.Add(5 * time.Minute) }
	assert.Equal(t, 14400-2, q.Remaining(ProviderGroq))

	// 跨天清零
	q.nowFunc = func() time.Time { return day1.Add(15 * time.Minute) } // 次日 00:05
	assert.Equal(t, 14400, q.Remaining(ProviderGroq))

	// 清零后的递增从 0 开始
	q.Increment(ProviderGroq)
	assert.Equal(t, 14400-1, q.Remaining(ProviderGroq))
}

func TestQuotaStoreFailureNonFatal(t *testing.T) {
	q := NewQuotaTracker(&failingStore{}, testRegistry(), testLogger())

	// 存储不可用时按全新状态继续，不 panic 不报错
	q.Increment(ProviderGroq)
	assert.Equal(t, 14400, q.Remaining(ProviderGroq))
}

func TestQuotaWarning(t *testing.T) {
	store := NewMemoryStateStore()
	reg := NewRegistryWithSpecs([]ProviderSpec{
		{Name: ProviderGroq, DailyQuota: 10, Protocol: ProtocolChat},
	}, map[Provider]string{ProviderGroq: "gsk_test_aaaabbbb"}, testLogger())
	q := NewQuotaTracker(store, reg, testLogger())

	assert.Empty(t, q.Warning())

	for i := 0; i < 9; i++ {
		q.Increment(ProviderGroq)
	}
	assert.NotEmpty(t, q.Warning())
}

// failingStore 永远返回错误的 StateStore
type failingStore struct{}

func (s *failingStore) Get(key string) ([]byte, bool, error) {
	return nil, false, assert.AnError
}

func (s *failingStore) Set(key string, value []byte) error {
	return assert.AnError
}
