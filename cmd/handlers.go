package main

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"llm-orchestrator/core"
	"llm-orchestrator/models"
)

// handleCall 核心业务入口：一次逻辑调用，内部跨提供商路由
// 中途失败对客户端不可见，只有全部耗尽才返回 503
func handleCall(dispatcher *core.Dispatcher, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CallRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, models.ErrorResponse{
				Error: models.ErrorDetail{
					Message: "Invalid request body: " + err.Error(),
					Type:    "invalid_request_error",
				},
			})
			return
		}

		if !req.Tier.Valid() {
			c.JSON(400, models.ErrorResponse{
				Error: models.ErrorDetail{
					Message: "tier must be 'fast' or 'reasoning'",
					Type:    "invalid_request_error",
				},
			})
			return
		}

		opts := core.CallOptions{
			Tier:         req.Tier,
			SystemPrompt: req.SystemPrompt,
			Temperature:  req.Temperature,
		}
		if req.MaxTokens != nil {
			opts.MaxTokens = *req.MaxTokens
		}

		result, err := dispatcher.CallLLM(c.Request.Context(), req.Prompt, opts)
		if err != nil {
			var terminal *core.AllProvidersFailedError
			if errors.As(err, &terminal) {
				// 友好文案给用户，技术细节放 attempts 供诊断
				c.JSON(503, models.ErrorResponse{
					Error: models.ErrorDetail{
						Message:  terminal.FriendlyMessage(),
						Type:     "all_providers_failed",
						Attempts: terminal.Attempts,
					},
				})
				return
			}
			// ctx 取消等非终态错误
			log.Warnf("CallLLM aborted: %v", err)
			c.JSON(400, models.ErrorResponse{
				Error: models.ErrorDetail{
					Message: err.Error(),
					Type:    "request_aborted",
				},
			})
			return
		}

		c.JSON(200, result)
	}
}

// handleHealth 健康检查 + UI 功能开关
func handleHealth(registry *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		configured := make([]string, 0)
		for _, spec := range registry.Configured() {
			configured = append(configured, string(spec.Name))
		}
		c.JSON(200, gin.H{
			"status":              "ok",
			"free_llm_configured": registry.HasFreeLLMConfigured(),
			"providers":           configured,
			"timestamp":           time.Now().Unix(),
		})
	}
}

// handleListProviders 提供商清单（凭证脱敏）
func handleListProviders(registry *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		type providerInfo struct {
			Name                 string `json:"name"`
			Endpoint             string `json:"endpoint"`
			FastModel            string `json:"fast_model"`
			ReasoningModel       string `json:"reasoning_model"`
			MaxTokens            int    `json:"max_tokens"`
			SupportsSystemPrompt bool   `json:"supports_system_prompt"`
			DailyQuota           int    `json:"daily_quota"`
			Key                  string `json:"key"`
			Configured           bool   `json:"configured"`
		}

		out := make([]providerInfo, 0)
		for _, spec := range registry.All() {
			cred := registry.Credential(spec.Name)
			out = append(out, providerInfo{
				Name:                 string(spec.Name),
				Endpoint:             spec.Endpoint,
				FastModel:            spec.FastModel,
				ReasoningModel:       spec.ReasoningModel,
				MaxTokens:            spec.MaxTokens,
				SupportsSystemPrompt: spec.SupportsSystemPrompt,
				DailyQuota:           spec.DailyQuota,
				Key:                  models.MaskAPIKey(cred),
				Configured:           cred != "",
			})
		}
		c.JSON(200, models.NewSuccessResponse("providers", out))
	}
}

// handleQuotaStatus 配额状态
func handleQuotaStatus(quota *core.QuotaTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, models.NewSuccessResponse("quota status", quota.Status()))
	}
}

// handleQuotaWarning 低配额告警
func handleQuotaWarning(quota *core.QuotaTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		warning := quota.Warning()
		c.JSON(200, models.NewSuccessResponse("quota warning", gin.H{
			"warning": warning,
			"active":  warning != "",
		}))
	}
}

// handleHealthStatus 提供商健康状态
func handleHealthStatus(health *core.HealthTracker, registry *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, models.NewSuccessResponse("provider health", health.Status(registry)))
	}
}

// handleHealthReset 手动重置某个提供商的健康记录
func handleHealthReset(health *core.HealthTracker, registry *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := core.Provider(c.Param("provider"))
		if _, ok := registry.Spec(name); !ok {
			c.JSON(404, models.NewErrorResponse("unknown provider: "+string(name)))
			return
		}
		health.Reset(name)
		c.JSON(200, models.NewSuccessResponse("health reset", gin.H{"provider": name}))
	}
}

// handleRecentAttempts 最近的调用审计记录
func handleRecentAttempts(attemptLogger *core.AttemptLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if l := c.Query("limit"); l != "" {
			// 非法值直接用默认
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
			}
		}
		logs, err := attemptLogger.Recent(limit)
		if err != nil {
			c.JSON(500, models.NewErrorResponse("failed to load attempts: "+err.Error()))
			return
		}
		c.JSON(200, models.NewSuccessResponse("recent attempts", logs))
	}
}
