// Package annotationtest provides a deterministic in-process Annotator for
// tests.
package annotationtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/iammorganparry/clive/apps/learnbot/internal/annotation"
	"github.com/iammorganparry/clive/apps/learnbot/internal/vector"
)

// Dim is the length of the vectors produced by Fake.
const Dim = 32

var verbs = map[string]bool{
	"is": true, "are": true, "am": true, "be": true, "do": true, "does": true,
	"have": true, "has": true, "like": true, "go": true, "want": true,
	"know": true, "say": true, "see": true, "make": true, "tell": true,
}

var pronouns = map[string]bool{
	"i": true, "you": true, "he": true, "she": true, "it": true, "we": true,
	"they": true, "me": true, "him": true, "her": true, "us": true, "them": true,
}

// Fake splits on whitespace and punctuation, tags parts of speech with a
// handful of rules, and embeds text as a hashed bag of lowercase words.
type Fake struct {
	// Vocabulary, when set, marks every alphabetic token outside it as
	// out of vocabulary.
	Vocabulary map[string]bool
	// Err, when set, is returned from every call.
	Err   error
	calls atomic.Int64
}

// Calls returns how many times Annotate ran.
func (f *Fake) Calls() int64 {
	return f.calls.Load()
}

func (f *Fake) Annotate(_ context.Context, text string) (*annotation.Document, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}

	doc := &annotation.Document{Text: text}
	vec := make([]float32, Dim)
	for _, word := range tokenize(text) {
		low := strings.ToLower(word)
		tok := annotation.Token{
			Text:    word,
			Lemma:   lemma(low),
			POS:     pos(low),
			IsAlpha: isAlpha(word),
		}
		if tok.IsAlpha && f.Vocabulary != nil && !f.Vocabulary[low] {
			tok.IsOOV = true
		}
		doc.Tokens = append(doc.Tokens, tok)
		if tok.IsAlpha {
			h := fnv.New32a()
			h.Write([]byte(tok.Lemma))
			vec[h.Sum32()%Dim]++
		}
	}
	if n := vector.Norm(vec); n > 0 {
		doc.Vector = vec
		doc.VectorNorm = n
	}
	return doc, nil
}

func tokenize(text string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			cur.WriteRune(r)
		default:
			flush()
			out = append(out, string(r))
		}
	}
	flush()
	return out
}

func lemma(low string) string {
	switch {
	case verbs[low]:
		if low == "is" || low == "are" || low == "am" {
			return "be"
		}
		return low
	case len(low) > 3 && strings.HasSuffix(low, "s") && !strings.HasSuffix(low, "ss"):
		return strings.TrimSuffix(low, "s")
	}
	return low
}

func pos(low string) string {
	switch {
	case !isAlpha(low) && isDigits(low):
		return "NUM"
	case !isAlpha(low) && !strings.ContainsFunc(low, unicode.IsLetter):
		return "PUNCT"
	case verbs[low] || strings.HasSuffix(low, "ing"):
		return "VERB"
	case pronouns[low]:
		return "PRON"
	}
	return "NOUN"
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
