package core

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"llm-orchestrator/models"
)

// Provider 提供商标识（固定枚举）
type Provider string

const (
	ProviderGroq     Provider = "groq"
	ProviderCerebras Provider = "cerebras"
	ProviderMistral  Provider = "mistral"
	ProviderGemini   Provider = "gemini"
)

// Protocol 上游协议类型，决定使用哪个适配器
type Protocol string

const (
	ProtocolChat   Protocol = "chat"   // OpenAI 风格 messages 数组
	ProtocolGemini Protocol = "gemini" // Gemini contents/parts 封装
)

// ProviderSpec 提供商静态描述，进程启动时创建，运行期不可变
type ProviderSpec struct {
	Name                 Provider
	Endpoint             string // Gemini 为模板，含 %s 模型占位
	FastModel            string
	ReasoningModel       string
	MaxTokens            int
	SupportsSystemPrompt bool
	DailyQuota           int
	Protocol             Protocol
	CredentialEnv        string
}

// ModelForTier 返回档位对应的模型名
func (s *ProviderSpec) ModelForTier(tier models.Tier) string {
	if tier == models.TierReasoning {
		return s.ReasoningModel
	}
	return s.FastModel
}

// providerSpecs 固定优先级顺序：免费额度大、延迟低的排前面
var providerSpecs = []ProviderSpec{
	{
		Name:                 ProviderGroq,
		Endpoint:             "https://api.groq.com/openai/v1/chat/completions",
		FastModel:            "llama-3.1-8b-instant",
		ReasoningModel:       "llama-3.3-70b-versatile",
		MaxTokens:            8000,
		SupportsSystemPrompt: true,
		DailyQuota:           14400,
		Protocol:             ProtocolChat,
		CredentialEnv:        "GROQ_API_KEY",
	},
	{
		Name:                 ProviderCerebras,
		Endpoint:             "https://api.cerebras.ai/v1/chat/completions",
		FastModel:            "llama3.1-8b",
		ReasoningModel:       "llama-3.3-70b",
		MaxTokens:            8000,
		SupportsSystemPrompt: true,
		DailyQuota:           14400,
		Protocol:             ProtocolChat,
		CredentialEnv:        "CEREBRAS_API_KEY",
	},
	{
		Name:                 ProviderMistral,
		Endpoint:             "https://api.mistral.ai/v1/chat/completions",
		FastModel:            "mistral-small-latest",
		ReasoningModel:       "mistral-large-latest",
		MaxTokens:            8000,
		SupportsSystemPrompt: true,
		DailyQuota:           5000,
		Protocol:             ProtocolChat,
		CredentialEnv:        "MISTRAL_API_KEY",
	},
	{
		Name:                 ProviderGemini,
		Endpoint:             "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent",
		FastModel:            "gemini-1.5-flash",
		ReasoningModel:       "gemini-1.5-pro",
		MaxTokens:            8192,
		SupportsSystemPrompt: false, // System Prompt 需拍扁进首条 user 文本
		DailyQuota:           1500,
		Protocol:             ProtocolGemini,
		CredentialEnv:        "GEMINI_API_KEY",
	},
}

// credentialPlaceholders 常见的占位值，视为未配置
var credentialPlaceholders = []string{
	"your-api-key",
	"your_api_key",
	"changeme",
	"placeholder",
	"xxx",
	"sk-xxx",
	"none",
}

// credentialUsable 凭证可用性检查：非空、最小长度、非占位值
func credentialUsable(cred string) bool {
	cred = strings.TrimSpace(cred)
	if len(cred) < 8 {
		return false
	}
	lower := strings.ToLower(cred)
	for _, p := range credentialPlaceholders {
		if lower == p {
			return false
		}
	}
	return true
}

// Registry 提供商注册表：静态描述 + 启动时读取一次的凭证
type Registry struct {
	specs  []ProviderSpec
	creds  map[Provider]string
	logger *logrus.Logger
}

// NewRegistry 从环境变量读取凭证（仅启动时读取一次）
func NewRegistry(logger *logrus.Logger) *Registry {
	creds := make(map[Provider]string)
	for _, s := range providerSpecs {
		creds[s.Name] = strings.TrimSpace(os.Getenv(s.CredentialEnv))
	}
	return NewRegistryWithCredentials(creds, logger)
}

// NewRegistryWithCredentials 显式注入凭证（测试用）
func NewRegistryWithCredentials(creds map[Provider]string, logger *logrus.Logger) *Registry {
	return NewRegistryWithSpecs(providerSpecs, creds, logger)
}

// NewRegistryWithSpecs 显式注入提供商描述与凭证（测试用，可指向本地假上游）
func NewRegistryWithSpecs(specs []ProviderSpec, creds map[Provider]string, logger *logrus.Logger) *Registry {
	r := &Registry{
		specs:  specs,
		creds:  creds,
		logger: logger,
	}
	for _, s := range r.specs {
		if credentialUsable(creds[s.Name]) {
			logger.Infof("Provider [%s] configured (key: %s)", s.Name, models.MaskAPIKey(creds[s.Name]))
		} else {
			logger.Infof("Provider [%s] not configured, permanently ineligible", s.Name)
		}
	}
	return r
}

// Spec 返回提供商的静态描述
func (r *Registry) Spec(p Provider) (*ProviderSpec, bool) {
	for i := range r.specs {
		if r.specs[i].Name == p {
			return &r.specs[i], true
		}
	}
	return nil, false
}

// All 按优先级返回全部提供商描述
func (r *Registry) All() []ProviderSpec {
	return r.specs
}

// Credential 返回提供商凭证（可能为空）
func (r *Registry) Credential(p Provider) string {
	return r.creds[p]
}

// Configured 按优先级返回凭证可用的提供商
func (r *Registry) Configured() []ProviderSpec {
	out := make([]ProviderSpec, 0, len(r.specs))
	for _, s := range r.specs {
		if credentialUsable(r.creds[s.Name]) {
			out = append(out, s)
		}
	}
	return out
}

// HasFreeLLMConfigured UI 功能开关：至少一个提供商凭证可用
func (r *Registry) HasFreeLLMConfigured() bool {
	return len(r.Configured()) > 0
}
