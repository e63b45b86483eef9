package llm_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/analyst/internal/llm"
)

func TestExtractJSON(t *testing.T) {
	t.Helper()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare object",
			input: `{"verdict":"pass"}`,
			want:  `{"verdict":"pass"}`,
		},
		{
			name:  "object wrapped in prose",
			input: "Here is my assessment:\n{\"verdict\":\"fail\",\"score\":2}\nLet me know.",
			want:  `{"verdict":"fail","score":2}`,
		},
		{
			name:  "fenced block",
			input: "```json\n{\"topics\":[\"gold\"]}\n```",
			want:  `{"topics":["gold"]}`,
		},
		{
			name:  "nested braces",
			input: `{"a":{"b":{"c":1}},"d":2}`,
			want:  `{"a":{"b":{"c":1}},"d":2}`,
		},
		{
			name:  "braces inside strings ignored",
			input: `{"text":"uses { and } freely","ok":true}`,
			want:  `{"text":"uses { and } freely","ok":true}`,
		},
		{
			name:  "escaped quote inside string",
			input: `{"text":"she said \"hi\" {","n":1}`,
			want:  `{"text":"she said \"hi\" {","n":1}`,
		},
		{
			name:  "array payload",
			input: "candidates below:\n[{\"id\":\"gold\"},{\"id\":\"oil\"}]",
			want:  `[{"id":"gold"},{"id":"oil"}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := llm.ExtractJSON(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoPayload(t *testing.T) {
	t.Helper()

	for _, input := range []string{"", "no structure here", "{unbalanced"} {
		_, err := llm.ExtractJSON(input)
		assert.True(t, errors.Is(err, llm.ErrNoJSON), "input %q should yield ErrNoJSON, got %v", input, err)
	}
}

func TestUnmarshal(t *testing.T) {
	t.Helper()

	var out struct {
		Verdict string  `json:"verdict"`
		Score   float64 `json:"score"`
	}
	err := llm.Unmarshal("verdict follows\n```json\n{\"verdict\":\"pass\",\"score\":0.9}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "pass", out.Verdict)
	assert.InDelta(t, 0.9, out.Score, 1e-9)

	err = llm.Unmarshal(`{"verdict": 42}`, &out)
	assert.Error(t, err, "type mismatch must surface as a decode error")
}
