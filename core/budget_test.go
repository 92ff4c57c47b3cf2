package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCycleBudget(t *testing.T) {
	b := NewCycleBudget(3, 1)
	assert.Equal(t, 2, b.Left())

	assert.True(t, b.Next())
	assert.True(t, b.Next())
	assert.False(t, b.Next())
	assert.Equal(t, 3, b.Used())
	assert.Equal(t, 0, b.Left())
}

func TestCycleBudget_FirstSendFillsCapOfOne(t *testing.T) {
	b := NewCycleBudget(1, 1)
	assert.False(t, b.Next())
	assert.Equal(t, 1, b.Used())
}

func TestCycleBudget_Unlimited(t *testing.T) {
	b := NewCycleBudget(0, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, b.Next())
	}
	assert.Equal(t, 101, b.Used())
	assert.Equal(t, -1, b.Left())
}
