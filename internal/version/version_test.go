package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	info := Info()

	assert.Equal(t, Version, info["version"])
	assert.Equal(t, "unknown", info["git_commit"])
	assert.Equal(t, runtime.Version(), info["go_version"])
}

func TestString(t *testing.T) {
	assert.Equal(t, "Medguide v0.1.0 (unknown)", String())
}
