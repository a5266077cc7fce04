// Package preprocess holds the statement rewriters that run on every input
// before a response is selected and on every statement before it is learned.
package preprocess

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

// Func rewrites a statement in place and returns it.
type Func func(*models.Statement) *models.Statement

const (
	CleanWhitespaceName = "clean_whitespace"
	UnescapeHTMLName    = "unescape_html"
	ConvertToASCIIName  = "convert_to_ascii"
	StripPrivateName    = "strip_private"
)

var registry = map[string]Func{
	CleanWhitespaceName: CleanWhitespace,
	UnescapeHTMLName:    UnescapeHTML,
	ConvertToASCIIName:  ConvertToASCII,
	StripPrivateName:    StripPrivate,
}

// Build resolves preprocessor names in order.
func Build(names []string) ([]Func, error) {
	out := make([]Func, 0, len(names))
	for _, name := range names {
		fn, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("unknown preprocessor %q", name)
		}
		out = append(out, fn)
	}
	return out, nil
}

// Apply runs fns in order.
func Apply(s *models.Statement, fns []Func) *models.Statement {
	for _, fn := range fns {
		s = fn(s)
	}
	return s
}

var spaces = regexp.MustCompile(` +`)

// CleanWhitespace turns newlines and tabs into spaces, collapses runs of
// spaces and trims the ends.
func CleanWhitespace(s *models.Statement) *models.Statement {
	text := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s.Text)
	s.Text = spaces.ReplaceAllString(strings.TrimSpace(text), " ")
	return s
}

// UnescapeHTML decodes entities such as &amp; and &#39;.
func UnescapeHTML(s *models.Statement) *models.Statement {
	s.Text = html.UnescapeString(s.Text)
	return s
}

// ConvertToASCII decomposes accented characters and drops everything
// outside ASCII.
func ConvertToASCII(s *models.Statement) *models.Statement {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.Predicate(func(r rune) bool {
		return r > unicode.MaxASCII
	})))
	out, _, err := transform.String(t, s.Text)
	if err == nil {
		s.Text = out
	}
	return s
}

// privateTagRegex matches <private>...</private> blocks (non-greedy, dotall).
var privateTagRegex = regexp.MustCompile(`(?s)<private>.*?</private>`)

// StripPrivate removes <private>...</private> blocks. A statement that is
// nothing but private blocks keeps its text and is tagged skipLearning.
func StripPrivate(s *models.Statement) *models.Statement {
	stripped := strings.TrimSpace(privateTagRegex.ReplaceAllString(s.Text, ""))
	if stripped == "" {
		if strings.TrimSpace(s.Text) != "" {
			s.AddTags(models.TagSkipLearning)
		}
		return s
	}
	s.Text = stripped
	return s
}
