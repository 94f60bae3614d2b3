// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"slices"
	"sync"

	"github.com/junegunn/fzf/src/algo"
	"github.com/junegunn/fzf/src/util"
)

// FuzzyResult is the outcome of matching one candidate string.
type FuzzyResult struct {
	Matched bool
	Score   int

	// Positions are the rune offsets of the matched characters in the
	// candidate, ascending. Used to highlight matches.
	Positions []int
}

var fuzzyInitOnce sync.Once

// NewSlab allocates the scratch space FuzzyMatch reuses between calls.
// A slab must not be shared between goroutines.
func NewSlab() *util.Slab {
	return util.MakeSlab(16*1024, 2048)
}

// FuzzyMatch runs fzf's V2 algorithm over text. Matching is
// case-insensitive unless the pattern contains an upper-case letter,
// the same smart-case rule fzf applies interactively. An empty pattern
// matches everything with a zero score.
func FuzzyMatch(text string, pattern []rune, slab *util.Slab) FuzzyResult {
	if len(pattern) == 0 {
		return FuzzyResult{Matched: true}
	}
	fuzzyInitOnce.Do(func() { algo.Init("default") })

	caseSensitive := false
	for _, character := range pattern {
		if character >= 'A' && character <= 'Z' {
			caseSensitive = true
			break
		}
	}
	if !caseSensitive {
		lowered := make([]rune, len(pattern))
		for index, character := range pattern {
			if character >= 'A' && character <= 'Z' {
				character += 'a' - 'A'
			}
			lowered[index] = character
		}
		pattern = lowered
	}

	chars := util.ToChars([]byte(text))
	result, positions := algo.FuzzyMatchV2(caseSensitive, true, true, &chars, pattern, true, slab)
	if result.Start < 0 {
		return FuzzyResult{}
	}

	var sorted []int
	if positions != nil {
		sorted = slices.Clone(*positions)
		slices.Sort(sorted)
	}
	return FuzzyResult{Matched: true, Score: result.Score, Positions: sorted}
}
