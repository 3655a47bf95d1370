package buildversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetVersionUnknownModule(t *testing.T) {
	assert.Equal(t, "unknown", GetVersion("example.com/not/linked"))
}

func TestGetVersionLinkedModule(t *testing.T) {
	assert.NotEmpty(t, GetVersion("github.com/stretchr/testify"))
}
