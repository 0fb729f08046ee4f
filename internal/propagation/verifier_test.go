package propagation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"a", "b"}, "b"))
	assert.False(t, contains([]string{"a", "b"}, "c"))
	assert.False(t, contains(nil, "c"))
}

func TestNew_DefaultsPanel(t *testing.T) {
	v := New(nil)
	assert.Equal(t, defaultPanel, v.panel)
	assert.Equal(t, defaultInterval, v.interval)
}

func TestNew_CustomPanel(t *testing.T) {
	v := New([]string{"9.9.9.9:53"})
	assert.Equal(t, []string{"9.9.9.9:53"}, v.panel)
}
