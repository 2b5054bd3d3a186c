// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package exploration

import (
	"html"
	"strings"
)

// accentFold maps common accented Latin runes to their base letter.
// Planner output comes from on-screen text in many locales; node names
// must stay plain ASCII.
var accentFold = map[rune]rune{
	'á': 'a', 'à': 'a', 'â': 'a', 'ä': 'a', 'ã': 'a', 'å': 'a',
	'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e',
	'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i',
	'ó': 'o', 'ò': 'o', 'ô': 'o', 'ö': 'o', 'õ': 'o', 'ø': 'o',
	'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u',
	'ý': 'y', 'ÿ': 'y',
	'ñ': 'n', 'ç': 'c', 'š': 's', 'ž': 'z',
	'ß': 's',
}

// noiseSuffixes are decorations screen readers append to menu labels.
var noiseSuffixes = []string{
	"_button", "_tab", "_menu_item", "_item", "_icon", "_label",
}

// CleanNodeName turns a raw on-screen item name into a node name:
// lower-case ASCII with single underscores between words. Empty input
// stays empty.
func CleanNodeName(item string) string {
	s := html.UnescapeString(item)
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if folded, ok := accentFold[r]; ok {
			r = folded
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	out = strings.Trim(out, "_")

	for _, suffix := range noiseSuffixes {
		if trimmed := strings.TrimSuffix(out, suffix); trimmed != "" && trimmed != out {
			out = trimmed
			break
		}
	}
	return out
}

// CleanNodeNames sanitises a list, dropping items that clean to
// nothing and deduplicating while preserving order.
func CleanNodeNames(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		clean := CleanNodeName(item)
		if clean == "" || seen[clean] {
			continue
		}
		seen[clean] = true
		out = append(out, clean)
	}
	return out
}
