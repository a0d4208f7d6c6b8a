package vision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(name string, priority int, enabled bool) *ProviderConfig {
	return &ProviderConfig{
		Name:     name,
		APIKey:   "key-" + name,
		Enabled:  enabled,
		Priority: priority,
	}
}

func TestRegistryByPriority(t *testing.T) {
	r := NewRegistry()
	r.Add(testConfig("openai", 2, true))
	r.Add(testConfig("gemini", 1, true))
	r.Add(testConfig("claude", 3, false))

	assert.Equal(t, []string{"gemini", "openai"}, r.ByPriority())
	assert.Equal(t, []string{"openai", "gemini"}, r.Enabled())

	def, ok := r.Default()
	require.True(t, ok)
	assert.Equal(t, "gemini", def)
}

func TestRegistryPriorityTiesKeepRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Add(testConfig("b", 1, true))
	r.Add(testConfig("a", 1, true))

	assert.Equal(t, []string{"b", "a"}, r.ByPriority())
}

func TestRegistryUpdate(t *testing.T) {
	r := NewRegistry()
	r.Add(testConfig("openai", 2, false))

	ok := r.Update("openai", func(c *ProviderConfig) {
		c.Enabled = true
		c.Priority = 1
	})
	require.True(t, ok)

	cfg, found := r.Get("openai")
	require.True(t, found)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.Priority)

	assert.False(t, r.Update("missing", func(*ProviderConfig) {}))
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Add(testConfig("openai", 1, true))

	cfg, _ := r.Get("openai")
	cfg.Enabled = false

	again, _ := r.Get("openai")
	assert.True(t, again.Enabled)
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Add(testConfig("openai", 1, true))
	r.Add(testConfig("gemini", 2, true))

	r.Remove("openai")
	assert.Equal(t, []string{"gemini"}, r.Names())
	_, found := r.Get("openai")
	assert.False(t, found)
}

func TestNewRegistryFromEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_ENABLED", "true")
	t.Setenv("OPENAI_RPM", "30")
	t.Setenv("GEMINI_API_KEY", "gm-test")
	t.Setenv("CLAUDE_API_KEY", "")

	r := NewRegistryFromEnv(nil)

	openai, found := r.Get("openai")
	require.True(t, found)
	assert.True(t, openai.Enabled)
	assert.Equal(t, 30, openai.RequestsPerMinute)
	assert.Equal(t, 2, openai.Priority)
	assert.Equal(t, 60*time.Second, openai.Timeout)

	gemini, found := r.Get("gemini")
	require.True(t, found)
	assert.True(t, gemini.Enabled)
	assert.Equal(t, 1, gemini.Priority)
	assert.Equal(t, 15, gemini.RequestsPerMinute)

	// No credential means the provider is not registered at all.
	_, found = r.Get("claude")
	assert.False(t, found)

	assert.Equal(t, []string{"gemini", "openai"}, r.ByPriority())
}
