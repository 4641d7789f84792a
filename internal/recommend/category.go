// Shelfscout - Personalized Book Recommendations
// Copyright 2026 The Shelfscout Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfscout/shelfscout

package recommend

import (
	"strings"
	"unicode"
)

// ExtractCategoryCode derives a category code from a book's classification
// string. The classification may contain multiple comma-separated call
// numbers; only the first is considered. The first alphabetic character of
// that part, uppercased, is the category code:
//
//	"A41/2-1=2"  -> "A"
//	"I247.5/1"   -> "I"
//	"TP312, O13" -> "T"
//
// An empty or whitespace-only classification, or one with no alphabetic
// character at all, maps to CategoryUncategorized. This is a total
// function; it never fails.
func ExtractCategoryCode(classification string) CategoryCode {
	if strings.TrimSpace(classification) == "" {
		return CategoryUncategorized
	}

	firstPart := classification
	if idx := strings.IndexByte(classification, ','); idx >= 0 {
		firstPart = classification[:idx]
	}

	for _, r := range firstPart {
		if unicode.IsLetter(r) {
			return CategoryCode(strings.ToUpper(string(r)))
		}
	}

	return CategoryUncategorized
}
