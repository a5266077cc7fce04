package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

func TestCleanWhitespace(t *testing.T) {
	got := CleanWhitespace(models.NewStatement("  hello\tthere \n\n  friend  "))
	assert.Equal(t, "hello there friend", got.Text)
}

func TestUnescapeHTML(t *testing.T) {
	got := UnescapeHTML(models.NewStatement("fish &amp; chips &#39;please&#39;"))
	assert.Equal(t, "fish & chips 'please'", got.Text)
}

func TestConvertToASCII(t *testing.T) {
	got := ConvertToASCII(models.NewStatement("Café naïve résumé ☕"))
	assert.Equal(t, "Cafe naive resume ", got.Text)
}

func TestStripPrivate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		skip     bool
	}{
		{"no private tags", "hello world", "hello world", false},
		{"single private tag", "public <private>secret</private> visible", "public  visible", false},
		{"multiline private content", "before <private>\nline 1\nline 2\n</private> after", "before  after", false},
		{"nested-looking tags", "<private>outer <private>inner</private> still</private> visible", "still</private> visible", false},
		{"private tag at end", "visible <private>secret</private>", "visible", false},
		{"only private content", "<private>secret</private>", "<private>secret</private>", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripPrivate(models.NewStatement(tt.input))
			assert.Equal(t, tt.expected, got.Text)
			assert.Equal(t, tt.skip, got.HasTag(models.TagSkipLearning))
		})
	}
}

func TestBuildAndApply(t *testing.T) {
	fns, err := Build([]string{UnescapeHTMLName, CleanWhitespaceName})
	require.NoError(t, err)

	got := Apply(models.NewStatement(" a &amp;\n b "), fns)
	assert.Equal(t, "a & b", got.Text)

	_, err = Build([]string{"lowercase"})
	assert.Error(t, err)
}
