package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"llm-orchestrator/models"
)

// AttemptLogger 异步尝试审计日志记录器
// 批量落库，队列满时丢弃以保护热路径
type AttemptLogger struct {
	db        *gorm.DB
	logChan   chan *models.CallAttemptLog
	logger    *logrus.Logger
	batchSize int
	flushTime time.Duration
	wg        sync.WaitGroup
	quit      chan struct{}
}

// attemptLogKeep 审计表只保留最新的条数，防止数据库膨胀
const attemptLogKeep = 200

func NewAttemptLogger(db *gorm.DB, logger *logrus.Logger) *AttemptLogger {
	l := &AttemptLogger{
		db:        db,
		logChan:   make(chan *models.CallAttemptLog, 1000),
		logger:    logger,
		batchSize: 100,
		flushTime: 5 * time.Second,
		quit:      make(chan struct{}),
	}
	l.startWorker()
	return l
}

// Log 提交日志到队列
func (l *AttemptLogger) Log(log *models.CallAttemptLog) {
	select {
	case l.logChan <- log:
		// Success
	default:
		// 队列满了就丢弃，绝不阻塞调度器
		l.logger.Warn("Attempt log channel full, dropping record")
	}
}

func (l *AttemptLogger) startWorker() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.workerLoop()
	}()
}

// workerLoop 核心循环
func (l *AttemptLogger) workerLoop() {
	var batch []*models.CallAttemptLog
	timer := time.NewTicker(l.flushTime)
	defer timer.Stop()

	for {
		select {
		case log := <-l.logChan:
			batch = append(batch, log)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = nil
			}
		case <-timer.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = nil
			}
		case <-l.quit:
			// 退出前刷新剩余日志
			if len(batch) > 0 {
				l.flush(batch)
			}
			return
		}
	}
}

// flush 批量写入并做严格清理
func (l *AttemptLogger) flush(logs []*models.CallAttemptLog) {
	if len(logs) == 0 {
		return
	}

	if err := l.db.CreateInBatches(logs, len(logs)).Error; err != nil {
		l.logger.Errorf("[AttemptLogger] Failed to flush %d logs: %v", len(logs), err)
		return
	}

	// 只保留最新 attemptLogKeep 条
	go func() {
		var count int64
		l.db.Model(&models.CallAttemptLog{}).Count(&count)
		if count > attemptLogKeep {
			var pivotID uint
			l.db.Model(&models.CallAttemptLog{}).Select("id").Order("id desc").Offset(attemptLogKeep).Limit(1).Scan(&pivotID)
			if pivotID > 0 {
				l.db.Where("id <= ?", pivotID).Delete(&models.CallAttemptLog{})
			}
		}
	}()
}

// Recent 返回最近的审计记录（管理接口）
func (l *AttemptLogger) Recent(limit int) ([]models.CallAttemptLog, error) {
	if limit <= 0 || limit > attemptLogKeep {
		limit = 50
	}
	var logs []models.CallAttemptLog
	err := l.db.Order("id desc").Limit(limit).Find(&logs).Error
	return logs, err
}

// Close 关闭日志记录器
func (l *AttemptLogger) Close() {
	close(l.quit)
	l.wg.Wait()
	close(l.logChan)
}
