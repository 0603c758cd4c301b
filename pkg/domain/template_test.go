package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom/pkg/domain"
)

func TestPlaceholders(t *testing.T) {
	tests := []struct {
		template string
		want     []string
	}{
		{"no placeholders", nil},
		{"one {{concept}}", []string{"concept"}},
		{"{{ concept }} with spaces", []string{"concept"}},
		{"{{a}} {{b}} {{a}} deduplicated", []string{"a", "b"}},
		{"{{key_elements}} and {{color_palette}}", []string{"key_elements", "color_palette"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.Placeholders(tt.template), tt.template)
	}
}

func TestExpandTemplate(t *testing.T) {
	ctx := map[string]string{"concept": "lighthouse", "genre": "photo"}
	resolve := func(field string) (string, bool) {
		v, ok := ctx[field]
		return v, ok
	}

	out, missing := domain.ExpandTemplate("a {{concept}} in {{genre}} style", resolve)
	require.Nil(t, missing)
	assert.Equal(t, "a lighthouse in photo style", out)
}

func TestExpandTemplate_MissingField(t *testing.T) {
	resolve := func(field string) (string, bool) { return "", false }

	_, missing := domain.ExpandTemplate("needs {{camera}} and {{lens}}", resolve)
	require.NotNil(t, missing)
	// The first missing placeholder is reported.
	assert.Equal(t, "camera", *missing)
}
