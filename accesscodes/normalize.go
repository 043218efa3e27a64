package accesscodes

import (
	"strings"
	"unicode"
)

// MinCodeLength is the fewest code symbols an input needs before it is worth a lookup
const MinCodeLength = 8

// Normalize uppercases raw and drops separators and whitespace. Input with exactly CodeSymbols
// symbols is rendered XXXX-XXXX, the form codes are stored in, so "wxyz5678" and " WXYZ-5678"
// find the same code.
func Normalize(raw string) string {
	symbols := make([]rune, 0, len(raw))
	for _, r := range strings.ToUpper(raw) {
		if isSeparator(r) {
			continue
		}
		symbols = append(symbols, r)
	}
	if len(symbols) == CodeSymbols {
		return string(symbols[:CodeSymbols/2]) + "-" + string(symbols[CodeSymbols/2:])
	}
	return string(symbols)
}

func isSeparator(r rune) bool {
	return r == '-' || unicode.IsSpace(r)
}

// SymbolCount counts the code symbols in s, ignoring separators and whitespace
func SymbolCount(s string) int {
	n := 0
	for _, r := range s {
		if !isSeparator(r) {
			n++
		}
	}
	return n
}

// TooShort reports whether the normalized input cannot possibly be a complete code
func TooShort(normalized string) bool {
	return SymbolCount(normalized) < MinCodeLength
}
