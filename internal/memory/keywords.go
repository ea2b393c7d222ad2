package memory

import (
	"regexp"
	"sort"
	"strings"
)

// keywordLimit caps how many keywords are derived per memory.
const keywordLimit = 5

// tokenPattern matches CJK runs of two or more characters and latin words
// of three or more letters. Shorter fragments carry too little signal to be
// useful search keys.
var tokenPattern = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]{2,}|[a-zA-Z]{3,}`)

// ExtractKeywords derives up to keywordLimit keywords from content, ordered
// by frequency. Latin tokens are lowercased so "PostgreSQL" and "postgresql"
// count as one keyword. Ties break by first appearance, which keeps the
// result deterministic for identical content.
func ExtractKeywords(content string) []string {
	tokens := tokenPattern.FindAllString(content, -1)
	if len(tokens) == 0 {
		return nil
	}

	counts := make(map[string]int, len(tokens))
	firstSeen := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		tok = strings.ToLower(tok)
		if _, ok := firstSeen[tok]; !ok {
			firstSeen[tok] = i
		}
		counts[tok]++
	}

	unique := make([]string, 0, len(counts))
	for tok := range counts {
		unique = append(unique, tok)
	}
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return firstSeen[unique[i]] < firstSeen[unique[j]]
	})

	if len(unique) > keywordLimit {
		unique = unique[:keywordLimit]
	}
	return unique
}
