package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditor_SaveItem(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "snapshots")
	auditor := NewAuditor(tempDir)

	t.Run("creates directory and writes indented JSON", func(t *testing.T) {
		raw := json.RawMessage(`{"id":"li_8f2c","media":{"duration":36000}}`)

		filename, err := auditor.SaveItem("li_8f2c", raw)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(filename, "li_8f2c-"))
		assert.True(t, strings.HasSuffix(filename, ".json"))

		content, err := os.ReadFile(filepath.Join(tempDir, filename))
		require.NoError(t, err)
		assert.Contains(t, string(content), "\n  \"media\": {")

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(content, &decoded))
		assert.Equal(t, "li_8f2c", decoded["id"])
	})

	t.Run("repeated snapshots get distinct names", func(t *testing.T) {
		raw := json.RawMessage(`{}`)

		first, err := auditor.SaveItem("li_1", raw)
		require.NoError(t, err)
		second, err := auditor.SaveItem("li_1", raw)
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})

	t.Run("sanitizes item ids", func(t *testing.T) {
		filename, err := auditor.SaveItem("../../etc/passwd", json.RawMessage(`{}`))
		require.NoError(t, err)

		assert.NotContains(t, filename, "/")
		_, err = os.Stat(filepath.Join(tempDir, filename))
		assert.NoError(t, err)
	})

	t.Run("rejects invalid JSON", func(t *testing.T) {
		_, err := auditor.SaveItem("li_2", json.RawMessage(`{not json`))
		assert.Error(t, err)
	})
}
