package randx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := ConnectionID()
		assert.NotEmpty(t, id)
		_, dup := seen[id]
		assert.False(t, dup, "connection ids must not repeat")
		seen[id] = struct{}{}
	}
}

func TestMessageIDNotEmpty(t *testing.T) {
	assert.NotEmpty(t, MessageID())
	assert.NotEqual(t, MessageID(), MessageID())
}
