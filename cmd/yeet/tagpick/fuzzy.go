// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package tagpick

import (
	"sort"
	"strings"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// Match is a candidate that matched a query.
type Match struct {
	Text  string
	Score int

	// Positions are the rune offsets in Text that matched the query.
	Positions []int
}

var initScoring sync.Once

// Rank returns the candidates matching query, best first. Matching is
// case-insensitive. Ties go to the shorter candidate, then to
// alphabetical order. An empty query matches everything.
func Rank(query string, candidates []string) []Match {
	initScoring.Do(func() { algo.Init("default") })

	pattern := []rune(strings.ToLower(query))
	slab := util.MakeSlab(16*1024, 2048)

	var matches []Match
	for _, candidate := range candidates {
		chars := util.ToChars([]byte(candidate))
		result, positions := algo.FuzzyMatchV2(false, true, true, &chars, pattern, true, slab)
		if result.Start < 0 {
			continue
		}
		match := Match{Text: candidate, Score: int(result.Score)}
		if positions != nil {
			match.Positions = append([]int(nil), (*positions)...)
			sort.Ints(match.Positions)
		}
		matches = append(matches, match)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if len(a.Text) != len(b.Text) {
			return len(a.Text) < len(b.Text)
		}
		return a.Text < b.Text
	})
	return matches
}

// Suggest returns the best fuzzy match for an unknown name, or "" when
// nothing matches.
func Suggest(unknown string, candidates []string) string {
	if unknown == "" {
		return ""
	}
	matches := Rank(unknown, candidates)
	if len(matches) == 0 {
		return ""
	}
	return matches[0].Text
}
