package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFS_ContainsValidConfigSchema(t *testing.T) {
	t.Parallel()

	data, err := FS.ReadFile("config.schema.json")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "object", doc["type"])
}
