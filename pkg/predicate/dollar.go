package predicate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rewrite rewrites every $NAME reference in src to rec.NAME, the way
// parse_predicate_formula does before handing the text to its expression
// parser, and returns a posMap alongside the rewritten text: posMap[i] is
// the byte offset in src that rewritten[i] corresponds to. Bytes that were
// synthesized (the "ec." filler inserted after the 'r' that replaces '$')
// map to the offset of the '$' they replaced, which is never itself the
// start of a renamable identifier span so it is never relied on for exact
// splicing.
func Rewrite(src string) (rewritten string, posMap []int) {
	var b strings.Builder
	posMap = make([]int, 0, len(src)+3*strings.Count(src, "$"))
	i := 0
	for i < len(src) {
		if src[i] == '$' && i+1 < len(src) && isIdentStart(rune(src[i+1])) {
			dollarPos := i
			b.WriteString("rec.")
			posMap = append(posMap, dollarPos, dollarPos, dollarPos, dollarPos)
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(src[i:])
		b.WriteRune(r)
		for k := 0; k < size; k++ {
			posMap = append(posMap, i)
		}
		i += size
	}
	return b.String(), posMap
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

// origPos maps a byte offset in the rewritten text back to the original
// source, given the posMap Rewrite produced.
func origPos(posMap []int, rewrittenPos int) int {
	if rewrittenPos < 0 {
		return 0
	}
	if rewrittenPos >= len(posMap) {
		if len(posMap) == 0 {
			return 0
		}
		return posMap[len(posMap)-1] + 1
	}
	return posMap[rewrittenPos]
}
