package spelling

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation"
)

// Corrector applies dictionary corrections to annotated text.
type Corrector struct {
	dict      Dictionary
	annotator annotation.Annotator
	logger    *zap.Logger
}

func NewCorrector(dict Dictionary, annotator annotation.Annotator, logger *zap.Logger) *Corrector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Corrector{dict: dict, annotator: annotation.Unwrap(annotator), logger: logger}
}

// Correct annotates text and corrects it. See CorrectDocument.
func (c *Corrector) Correct(ctx context.Context, text string) (string, bool, error) {
	doc, err := c.annotator.Annotate(ctx, text)
	if err != nil {
		return text, false, err
	}
	return c.CorrectDocument(ctx, doc)
}

type replacement struct {
	from, to string
}

// CorrectDocument returns the normalized text and whether it differs from
// the input ignoring case. Misspelled tokens are replaced in order, each at
// its next whole-word occurrence, so words that merely contain a
// misspelling are left alone.
func (c *Corrector) CorrectDocument(ctx context.Context, doc *annotation.Document) (string, bool, error) {
	var reps []replacement
	for _, tok := range doc.Tokens {
		if !tok.IsAlpha || strings.Contains(tok.Text, "'") {
			continue
		}
		fixed, err := c.correctWord(ctx, tok)
		if err != nil {
			return doc.Text, false, err
		}
		if fixed != "" && fixed != tok.Text {
			reps = append(reps, replacement{from: tok.Text, to: fixed})
		}
	}

	out := doc.Text
	cursor := 0
	for _, r := range reps {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(r.from) + `\b`)
		loc := re.FindStringIndex(out[cursor:])
		if loc == nil {
			continue
		}
		start := cursor + loc[0]
		out = out[:start] + r.to + out[cursor+loc[1]:]
		cursor = start + len(r.to)
	}
	changed := !strings.EqualFold(out, doc.Text)
	if changed {
		c.logger.Debug("spelling corrected", zap.String("from", doc.Text), zap.String("to", out))
	}
	return out, changed, nil
}

// correctWord resolves one token. It returns "" when the word is fine or no
// correction is trustworthy.
func (c *Corrector) correctWord(ctx context.Context, tok annotation.Token) (string, error) {
	ok, err := c.dict.IsCorrect(ctx, tok.Text)
	if err != nil {
		return "", fmt.Errorf("check %q: %w", tok.Text, err)
	}
	if ok {
		return "", nil
	}

	correction, err := c.dict.Correction(ctx, tok.Text)
	if err != nil {
		return "", fmt.Errorf("correct %q: %w", tok.Text, err)
	}
	suggestions, err := c.dict.Suggestions(ctx, tok.Text)
	if err != nil {
		return "", fmt.Errorf("suggest %q: %w", tok.Text, err)
	}
	var top string
	if len(suggestions) > 0 {
		top = suggestions[0]
	}

	switch {
	case correction != "" && correction == top:
		return correction, nil
	case correction != "" && slices.Contains(suggestions, correction):
		return correction, nil
	case top == "":
		return "", nil
	case tok.IsOOV:
		return top, nil
	}

	candidates, err := c.dict.Candidates(ctx, tok.Text)
	if err != nil {
		return "", fmt.Errorf("candidates %q: %w", tok.Text, err)
	}
	if slices.Contains(candidates, top) {
		return top, nil
	}
	return "", nil
}
