package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveModel(t *testing.T) {
	p := DefaultProviderConfig()
	p.ModelMapping["claude-3-opus-20240229"] = "glm-custom"

	assert.Equal(t, "glm-custom", p.ResolveModel("claude-3-opus-20240229"))
	assert.Equal(t, DefaultOpusModel, p.ResolveModel("claude-opus-4"))
	assert.Equal(t, DefaultHaikuModel, p.ResolveModel("Claude-3-5-HAIKU"))
	assert.Equal(t, DefaultSonnetModel, p.ResolveModel("claude-sonnet-4-5"))
	assert.Equal(t, DefaultSonnetModel, p.ResolveModel("anything-else"))
}

func TestAuthMode(t *testing.T) {
	assert.Equal(t, AuthOff, AuthAuto.Resolve(false))
	assert.Equal(t, AuthAllExceptHealth, AuthAuto.Resolve(true))
	assert.Equal(t, AuthStrict, AuthStrict.Resolve(false))

	assert.False(t, AuthOff.RequiresAuth("/v1/models"))
	assert.True(t, AuthStrict.RequiresAuth(HealthPath))
	assert.False(t, AuthAllExceptHealth.RequiresAuth(HealthPath))
	assert.True(t, AuthAllExceptHealth.RequiresAuth("/v1/chat/completions"))

	m, err := ParseAuthMode("")
	require.NoError(t, err)
	assert.Equal(t, AuthAuto, m)
	_, err = ParseAuthMode("sometimes")
	assert.Error(t, err)

	assert.Equal(t, "127.0.0.1", BindAddress(false))
	assert.Equal(t, "0.0.0.0", BindAddress(true))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Pooled")
	require.NoError(t, err)
	assert.Equal(t, ModePooled, m)
	_, err = ParseMode("random")
	assert.Error(t, err)
}

func provider(mode Mode) ProviderConfig {
	p := DefaultProviderConfig()
	p.Enabled = true
	p.APIKey = "zai-key"
	p.DispatchMode = mode
	return p
}

var primary = Target{Name: "primary", BaseURL: "http://primary", Protocol: ProtocolAnthropic}

func TestDispatcherModes(t *testing.T) {
	ctx := context.Background()
	req := Request{Protocol: ProtocolAnthropic, Model: "claude-opus-4"}

	t.Run("off", func(t *testing.T) {
		d := NewDispatcher(NewStaticPool(primary), nil, provider(ModeOff))
		for i := 0; i < 3; i++ {
			got, err := d.Pick(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, "primary", got.Name)
			assert.Equal(t, "claude-opus-4", got.Model)
		}
	})

	t.Run("exclusive", func(t *testing.T) {
		d := NewDispatcher(NewStaticPool(primary), nil, provider(ModeExclusive))
		got, err := d.Pick(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ProviderName, got.Name)
		assert.Equal(t, DefaultOpusModel, got.Model)
		assert.Equal(t, "zai-key", got.APIKey)
	})

	t.Run("exclusive ignores other protocols", func(t *testing.T) {
		openai := Target{Name: "openai", Protocol: ProtocolOpenAI}
		d := NewDispatcher(NewStaticPool(openai), nil, provider(ModeExclusive))
		got, err := d.Pick(ctx, Request{Protocol: ProtocolOpenAI, Model: "gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, "openai", got.Name)
	})

	t.Run("pooled round robin", func(t *testing.T) {
		d := NewDispatcher(NewStaticPool(primary), nil, provider(ModePooled))
		var names []string
		for i := 0; i < 4; i++ {
			got, err := d.Pick(ctx, req)
			require.NoError(t, err)
			names = append(names, got.Name)
		}
		assert.Equal(t, []string{"primary", ProviderName, "primary", ProviderName}, names)
	})

	t.Run("fallback only when pool exhausted", func(t *testing.T) {
		d := NewDispatcher(NewStaticPool(primary), nil, provider(ModeFallback))
		got, err := d.Pick(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, "primary", got.Name)

		d = NewDispatcher(NewStaticPool(), nil, provider(ModeFallback))
		got, err = d.Pick(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ProviderName, got.Name)
	})

	t.Run("disabled provider", func(t *testing.T) {
		p := provider(ModeExclusive)
		p.Enabled = false
		d := NewDispatcher(NewStaticPool(), nil, p)
		_, err := d.Pick(ctx, req)
		assert.ErrorIs(t, err, ErrNoTarget)
	})
}

type brokenPool struct{}

func (brokenPool) Candidates(context.Context, Request) ([]Target, error) {
	return nil, errors.New("store offline")
}

func TestDispatcherPoolError(t *testing.T) {
	d := NewDispatcher(brokenPool{}, nil, provider(ModeFallback))
	_, err := d.Pick(context.Background(), Request{Protocol: ProtocolAnthropic})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store offline")
}

type firstPicker struct{}

func (firstPicker) Pick(_ Request, c []Target) Target { return c[0] }

func TestDispatcherCustomPicker(t *testing.T) {
	second := Target{Name: "second", Protocol: ProtocolAnthropic}
	d := NewDispatcher(NewStaticPool(primary, second), firstPicker{}, provider(ModeOff))
	for i := 0; i < 3; i++ {
		got, err := d.Pick(context.Background(), Request{Protocol: ProtocolAnthropic})
		require.NoError(t, err)
		assert.Equal(t, "primary", got.Name)
	}
}
