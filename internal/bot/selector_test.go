package bot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iammorganparry/clive/apps/learnbot/internal/models"
)

func cand(adapter, text, inResponseTo string, confidence float64) candidate {
	s := models.NewStatement(text)
	s.InResponseTo = inResponseTo
	s.Confidence = confidence
	return candidate{adapter: adapter, statement: s}
}

func TestSelectCandidate(t *testing.T) {
	tests := []struct {
		name     string
		cands    []candidate
		wantText string
		wantConf float64
		wantFrom string
		wantMode string
	}{
		{
			name:     "single candidate",
			cands:    []candidate{cand("a", "hi", "", 0.3)},
			wantText: "hi", wantConf: 0.3, wantFrom: "a", wantMode: modeDirect,
		},
		{
			name: "two candidates take the most confident",
			cands: []candidate{
				cand("a", "hi", "", 0.4),
				cand("b", "bye", "", 0.9),
			},
			wantText: "bye", wantConf: 0.9, wantFrom: "b", wantMode: modeDirect,
		},
		{
			name: "two agreeing candidates do not vote",
			cands: []candidate{
				cand("a", "hi", "", 0.4),
				cand("b", "hi", "", 0.5),
			},
			wantText: "hi", wantConf: 0.5, wantFrom: "b", wantMode: modeDirect,
		},
		{
			name: "equal confidence keeps the first",
			cands: []candidate{
				cand("a", "first", "", 0.5),
				cand("b", "second", "", 0.5),
			},
			wantText: "first", wantConf: 0.5, wantFrom: "a", wantMode: modeDirect,
		},
		{
			name: "quorum beats a more confident outlier",
			cands: []candidate{
				cand("a", "hi", "", 0.6),
				cand("b", "hi", "", 0.4),
				cand("c", "bye", "", 0.9),
			},
			wantText: "hi", wantConf: 0.6, wantFrom: "a", wantMode: modeVoting,
		},
		{
			name: "group representative is its most confident member",
			cands: []candidate{
				cand("a", "hi", "", 0.2),
				cand("b", "bye", "", 0.9),
				cand("c", "hi", "", 0.7),
			},
			wantText: "hi", wantConf: 0.7, wantFrom: "c", wantMode: modeVoting,
		},
		{
			name: "no agreement keeps the most confident",
			cands: []candidate{
				cand("a", "one", "", 0.2),
				cand("b", "two", "", 0.8),
				cand("c", "three", "", 0.5),
			},
			wantText: "two", wantConf: 0.8, wantFrom: "b", wantMode: modeVoting,
		},
		{
			name: "same text replying to different statements does not agree",
			cands: []candidate{
				cand("a", "hi", "hello", 0.3),
				cand("b", "hi", "hey", 0.3),
				cand("c", "bye", "", 0.9),
			},
			wantText: "bye", wantConf: 0.9, wantFrom: "c", wantMode: modeVoting,
		},
		{
			name: "tied groups go to the first seen",
			cands: []candidate{
				cand("a", "x", "", 0.1),
				cand("b", "y", "", 0.9),
				cand("c", "y", "", 0.8),
				cand("d", "x", "", 0.2),
			},
			wantText: "x", wantConf: 0.2, wantFrom: "d", wantMode: modeVoting,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, mode, ok := selectCandidate(tt.cands)
			require.True(t, ok)
			assert.Equal(t, tt.wantText, got.statement.Text)
			assert.Equal(t, tt.wantConf, got.statement.Confidence)
			assert.Equal(t, tt.wantFrom, got.adapter)
			assert.Equal(t, tt.wantMode, mode)
		})
	}
}

func TestSelectCandidateEmpty(t *testing.T) {
	_, _, ok := selectCandidate(nil)
	assert.False(t, ok)
}
