package featureflags

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "unknown"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabled_PercentageRollout(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%,over=250%")

	assert.True(t, m.Enabled("always", 1))
	assert.True(t, m.Enabled("over", 1), "percentages clamp to 100")
	assert.False(t, m.Enabled("never", 1))

	first := m.Enabled("canary", 42)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", 0), "anonymous users are outside partial rollouts")
	assert.True(t, m.Enabled("always", 0))

	on := 0
	for i := 0; i < 1000; i++ {
		if m.EnabledFor("canary", fmt.Sprintf("conn-%d", i)) {
			on++
		}
	}
	assert.InDelta(t, 250, on, 80)
}

func TestEnabledFor_AnonymousConnections(t *testing.T) {
	m := NewManager("typing_indicator=50%")

	assert.False(t, m.EnabledFor(TypingIndicator, ""))
	got := m.EnabledFor(TypingIndicator, "7b0c")
	assert.Equal(t, got, m.EnabledFor(TypingIndicator, "7b0c"))
}

func TestNewManager_SkipsMalformedEntries(t *testing.T) {
	m := NewManager(" bad ,x=on, Y = 20% ,z=off,w=sometimes,=on")

	assert.Equal(t, "x=100%,y=20%,z=0%", m.String())
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.Enabled(TypingIndicator, 7))
	assert.False(t, m.EnabledFor(TypingIndicator, "conn"))
	assert.Equal(t, "none", m.String())
}
