// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package rjson

import "strings"

// applyRenameAll transforms a Go identifier (e.g. "UserName") into the wire
// form dictated by policy. Words are split on case transitions, since Go
// field names don't carry their own word-separator punctuation.
func applyRenameAll(name string, policy RenameAllPolicy) string {
	if policy == RenameNone {
		return name
	}
	words := splitWords(name)
	switch policy {
	case RenameSnakeCase:
		return strings.ToLower(strings.Join(words, "_"))
	case RenameKebabCase:
		return strings.ToLower(strings.Join(words, "-"))
	case RenameScreamingSnakeCase:
		return strings.ToUpper(strings.Join(words, "_"))
	case RenameUpperCase:
		return strings.ToUpper(strings.Join(words, ""))
	case RenameLowerCase:
		return strings.ToLower(strings.Join(words, ""))
	case RenameCamelCase:
		return camel(words, false)
	case RenamePascalCase:
		return camel(words, true)
	default:
		return name
	}
}

func camel(words []string, pascal bool) string {
	var b strings.Builder
	for i, w := range words {
		lw := strings.ToLower(w)
		if i == 0 && !pascal {
			b.WriteString(lw)
			continue
		}
		b.WriteString(strings.ToUpper(lw[:1]))
		b.WriteString(lw[1:])
	}
	return b.String()
}

// splitWords splits a Go identifier into words on case transitions and
// underscores, e.g. "HTTPServerID" -> ["HTTP","Server","ID"].
func splitWords(s string) []string {
	var words []string
	var cur []rune
	runes := []rune(s)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '_' || r == '-' {
			flush()
			continue
		}
		isUpper := r >= 'A' && r <= 'Z'
		if isUpper && len(cur) > 0 {
			prevUpper := cur[len(cur)-1] >= 'A' && cur[len(cur)-1] <= 'Z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if !prevUpper || nextLower {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}
