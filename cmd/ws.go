package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"llm-orchestrator/core"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 管理面板跨域访问，鉴权在中间件已完成
	CheckOrigin: func(r *http.Request) bool { return true },
}

// statusFeedInterval 状态推送间隔
const statusFeedInterval = 3 * time.Second

// handleStatusFeed 实时状态推送：每隔几秒把健康+配额快照推给管理面板
func handleStatusFeed(quota *core.QuotaTracker, health *core.HealthTracker, registry *core.Registry, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warnf("WebSocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		// 读循环只为感知客户端关闭
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(statusFeedInterval)
		defer ticker.Stop()

		// 连接建立后立即推一帧
		if err := writeSnapshot(conn, quota, health, registry); err != nil {
			return
		}

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writeSnapshot(conn, quota, health, registry); err != nil {
					return
				}
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, quota *core.QuotaTracker, health *core.HealthTracker, registry *core.Registry) error {
	return conn.WriteJSON(gin.H{
		"quota":     quota.Status(),
		"health":    health.Status(registry),
		"timestamp": time.Now().Unix(),
	})
}
