package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampIndex(t *testing.T) {
	assert.Equal(t, -1, ClampIndex(0, 3))
	assert.Equal(t, 0, ClampIndex(5, -7))
	assert.Equal(t, 4, ClampIndex(5, 99))
	assert.Equal(t, 2, ClampIndex(5, 2))
}
