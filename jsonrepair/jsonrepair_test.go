package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("plain JSON parses directly", func(t *testing.T) {
		value, ok := Parse(`{"name": "Ada", "score": 92}`)
		require.True(t, ok)
		parsed := value.(map[string]any)
		assert.Equal(t, "Ada", parsed["name"])
		assert.Equal(t, float64(92), parsed["score"])
	})

	t.Run("fenced JSON parses like the unwrapped JSON", func(t *testing.T) {
		raw := `{"skills": ["go", "sql"]}`
		fenced := "```json\n" + raw + "\n```"

		fromFenced, ok := Parse(fenced)
		require.True(t, ok)
		fromRaw, ok := Parse(raw)
		require.True(t, ok)
		assert.Equal(t, fromRaw, fromFenced)
	})

	t.Run("fence with leading prose", func(t *testing.T) {
		value, ok := Parse("Here is the result:\n```json\n{\"ok\": true}\n```")
		require.True(t, ok)
		assert.Equal(t, map[string]any{"ok": true}, value)
	})

	t.Run("trailing comma is repaired", func(t *testing.T) {
		value, ok := Parse(`{"name": "Ada", "score": 92,}`)
		require.True(t, ok)
		assert.Equal(t, "Ada", value.(map[string]any)["name"])
	})

	t.Run("missing closing brace is repaired", func(t *testing.T) {
		value, ok := Parse(`{"name": "Ada", "tags": ["go"]`)
		require.True(t, ok)
		assert.Equal(t, "Ada", value.(map[string]any)["name"])
	})

	t.Run("JSON embedded in chatter is extracted", func(t *testing.T) {
		value, ok := Parse(`Sure! The summary is {"years": 7, "senior": true} as requested.`)
		require.True(t, ok)
		assert.Equal(t, float64(7), value.(map[string]any)["years"])
	})

	t.Run("no brackets yields nil without error", func(t *testing.T) {
		value, ok := Parse("the candidate looks strong overall")
		assert.False(t, ok)
		assert.Nil(t, value)
	})

	t.Run("empty input yields nil", func(t *testing.T) {
		value, ok := Parse("   ")
		assert.False(t, ok)
		assert.Nil(t, value)
	})
}

func TestRepair(t *testing.T) {
	t.Run("keeps commas inside strings", func(t *testing.T) {
		input := `{"note": "a, b,", "n": 1,}`
		value, ok := Parse(input)
		require.True(t, ok)
		assert.Equal(t, "a, b,", value.(map[string]any)["note"])
	})

	t.Run("closes unterminated string", func(t *testing.T) {
		value, ok := Parse(`{"name": "Ada`)
		require.True(t, ok)
		assert.Equal(t, "Ada", value.(map[string]any)["name"])
	})
}

func TestExtractBalanced(t *testing.T) {
	t.Run("prefers the longest region", func(t *testing.T) {
		text := `[1] and then {"a": 1, "b": [2, 3]} tail`
		assert.Equal(t, `{"a": 1, "b": [2, 3]}`, ExtractBalanced(text))
	})

	t.Run("ignores braces inside strings", func(t *testing.T) {
		text := `{"expr": "if } else {"} trailing`
		assert.Equal(t, `{"expr": "if } else {"}`, ExtractBalanced(text))
	})

	t.Run("empty on plain text", func(t *testing.T) {
		assert.Equal(t, "", ExtractBalanced("nothing to see"))
	})
}
