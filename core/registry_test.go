package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"llm-orchestrator/models"
)

func TestCredentialUsable(t *testing.T) {
	assert.True(t, credentialUsable("gsk_live_abcdefgh12345678"))
	assert.True(t, credentialUsable("  gsk_live_abcdefgh  ")) // 两侧空白被裁剪

	// 空值与过短凭证
	assert.False(t, credentialUsable(""))
	assert.False(t, credentialUsable("   "))
	assert.False(t, credentialUsable("short"))

	// 占位值（大小写不敏感）
	assert.False(t, credentialUsable("changeme"))
	assert.False(t, credentialUsable("ChangeMe"))
	assert.False(t, credentialUsable("your-api-key"))
	assert.False(t, credentialUsable("PLACEHOLDER"))
}

func TestConfiguredKeepsPriorityOrder(t *testing.T) {
	// 只配 mistral 和 groq：返回顺序仍按固定优先级 groq → mistral
	reg := NewRegistryWithCredentials(map[Provider]string{
		ProviderMistral: "msk-test-aaaabbbb",
		ProviderGroq:    "gsk_test_aaaabbbb",
	}, testLogger())

	configured := reg.Configured()
	assert.Len(t, configured, 2)
	assert.Equal(t, ProviderGroq, configured[0].Name)
	assert.Equal(t, ProviderMistral, configured[1].Name)
}

func TestHasFreeLLMConfigured(t *testing.T) {
	empty := NewRegistryWithCredentials(map[Provider]string{}, testLogger())
	assert.False(t, empty.HasFreeLLMConfigured())

	placeholderOnly := NewRegistryWithCredentials(map[Provider]string{
		ProviderGroq: "your-api-key",
	}, testLogger())
	assert.False(t, placeholderOnly.HasFreeLLMConfigured())

	assert.True(t, testRegistry().HasFreeLLMConfigured())
}

func TestSpecLookup(t *testing.T) {
	reg := testRegistry()

	spec, ok := reg.Spec(ProviderGemini)
	assert.True(t, ok)
	assert.Equal(t, ProtocolGemini, spec.Protocol)
	assert.False(t, spec.SupportsSystemPrompt)

	_, ok = reg.Spec(Provider("nonexistent"))
	assert.False(t, ok)
}

func TestModelForTier(t *testing.T) {
	reg := testRegistry()
	spec, _ := reg.Spec(ProviderGroq)

	assert.Equal(t, spec.FastModel, spec.ModelForTier(models.TierFast))
	assert.Equal(t, spec.ReasoningModel, spec.ModelForTier(models.TierReasoning))
	// 空档位按 fast 处理
	assert.Equal(t, spec.FastModel, spec.ModelForTier(""))
}
