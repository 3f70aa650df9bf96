package classify

import (
	"regexp"
	"sort"
	"strings"
)

// intentKeywords maps each intent category in the servicing taxonomy to the
// phrases that hint at it. At most one hit per category is reported.
var intentKeywords = map[string][]string{
	"Adjustment":                {"adjustment", "correction", "modification"},
	"AU Transfer":               {"au transfer", "asset utilization", "fund movement"},
	"Closing Notice":            {"closing notice", "reallocation fees", "amendment fees", "reallocation principal"},
	"Commitment Change":         {"commitment change", "cashless roll", "decrease", "increase"},
	"Fee Payment":               {"fee payment", "ongoing fee", "letter of credit fee"},
	"Money Movement - Inbound":  {"inbound payment", "principal received", "interest received"},
	"Money Movement - Outbound": {"outbound payment", "foreign currency", "timebound transfer"},
}

type intentPattern struct {
	keyword string
	re      *regexp.Regexp
}

type categoryPatterns struct {
	category string
	patterns []intentPattern
}

// keywordPatterns holds the whole-word matchers, compiled once and kept in
// fixed category order so output is deterministic.
var keywordPatterns = compileKeywordPatterns()

func compileKeywordPatterns() []categoryPatterns {
	categories := make([]string, 0, len(intentKeywords))
	for category := range intentKeywords {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	out := make([]categoryPatterns, 0, len(categories))
	for _, category := range categories {
		cp := categoryPatterns{category: category}
		for _, keyword := range intentKeywords[category] {
			cp.patterns = append(cp.patterns, intentPattern{
				keyword: keyword,
				re:      regexp.MustCompile(`\b` + regexp.QuoteMeta(keyword) + `\b`),
			})
		}
		out = append(out, cp)
	}
	return out
}

// DetectKeywords scans the body for known intent phrases, whole-word
// matched on lowercased text.
func DetectKeywords(body string) []string {
	lowered := strings.ToLower(body)

	matched := []string{}
	for _, cp := range keywordPatterns {
		for _, p := range cp.patterns {
			if p.re.MatchString(lowered) {
				matched = append(matched, p.keyword)
				break
			}
		}
	}
	return matched
}
