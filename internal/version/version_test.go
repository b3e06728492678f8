package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_IncludesBuildMetadata(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tally dev (commit unknown, built unknown)", String())
}
