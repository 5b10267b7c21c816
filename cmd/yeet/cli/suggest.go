// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maxSuggestDistance is the largest edit distance still suggested.
const maxSuggestDistance = 3

// closest returns the candidate nearest to name, or "" when none is
// within maxSuggestDistance. Ties go to the earlier candidate.
func closest(name string, candidates []string) string {
	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if distance := levenshtein(name, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// suggestCommand matches against names and aliases but always
// suggests the name.
func suggestCommand(unknown string, commands []*Command) string {
	var candidates []string
	owner := make(map[string]string)
	for _, command := range commands {
		for _, name := range append([]string{command.Name}, command.Aliases...) {
			candidates = append(candidates, name)
			owner[name] = command.Name
		}
	}
	return owner[closest(unknown, candidates)]
}

// suggestFlag finds the first flag in args that flagSet does not
// define and returns the nearest defined flag as "--name".
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	var defined []string
	flagSet.VisitAll(func(flag *pflag.Flag) { defined = append(defined, flag.Name) })

	for _, arg := range args {
		if arg == "--" {
			return ""
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if flagSet.Lookup(name) != nil || (len(name) == 1 && flagSet.ShorthandLookup(name) != nil) {
			continue
		}
		if suggestion := closest(name, defined); suggestion != "" {
			return "--" + suggestion
		}
		return ""
	}
	return ""
}

// levenshtein is the edit distance between a and b, counted in bytes.
func levenshtein(a, b string) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	// row[j] holds the distance between the current prefix of a and
	// b[:j].
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diagonal := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			substitution := diagonal
			if a[i-1] != b[j-1] {
				substitution++
			}
			diagonal = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, substitution)
		}
	}
	return row[len(b)]
}
