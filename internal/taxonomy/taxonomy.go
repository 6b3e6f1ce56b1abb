// Package taxonomy maps free-text job titles to canonical job families.
package taxonomy

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/comp-pricer/internal/model"
)

// JobMatch is the best family for a title.
type JobMatch struct {
	JobCode    string  `json:"job_code"`
	Title      string  `json:"title,omitempty"`
	MatchScore float64 `json:"match_score"`
}

// Matcher resolves a job title to a job family. A nil match with a nil
// error means no family fits.
type Matcher interface {
	MatchJobFamily(ctx context.Context, jobTitle string) (*JobMatch, error)
}

// Family is one canonical job code with the keywords that identify it.
type Family struct {
	JobCode  string   `yaml:"job_code" mapstructure:"job_code"`
	Title    string   `yaml:"title" mapstructure:"title"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// KeywordMatcher scores families by the share of their keywords found in
// the title. Ties go to the lower job code.
type KeywordMatcher struct {
	families []family
}

type family struct {
	Family
	tokens []string
}

// NewKeywordMatcher builds a matcher over families. Families without
// keywords are ignored.
func NewKeywordMatcher(families []Family) *KeywordMatcher {
	m := &KeywordMatcher{}
	for _, f := range families {
		var toks []string
		for _, kw := range f.Keywords {
			toks = append(toks, tokenize(kw)...)
		}
		toks = dedupe(toks)
		if f.JobCode == "" || len(toks) == 0 {
			continue
		}
		m.families = append(m.families, family{Family: f, tokens: toks})
	}
	sort.Slice(m.families, func(i, j int) bool { return m.families[i].JobCode < m.families[j].JobCode })
	return m
}

// MatchJobFamily implements Matcher.
func (m *KeywordMatcher) MatchJobFamily(ctx context.Context, jobTitle string) (*JobMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	title := make(map[string]bool)
	for _, tok := range tokenize(jobTitle) {
		title[tok] = true
	}
	if len(title) == 0 {
		return nil, nil
	}

	var best *JobMatch
	for _, f := range m.families {
		hits := 0
		for _, tok := range f.tokens {
			if title[tok] {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := float64(hits) / float64(len(f.tokens))
		if best == nil || score > best.MatchScore {
			best = &JobMatch{JobCode: f.JobCode, Title: f.Title, MatchScore: score}
		}
	}
	return best, nil
}

func tokenize(s string) []string {
	s = cases.Fold().String(norm.NFC.String(s))
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func dedupe(toks []string) []string {
	seen := make(map[string]bool, len(toks))
	out := toks[:0]
	for _, t := range toks {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Filter drops sets tagged with a job code other than match.JobCode when
// the match is confident enough. Untagged sets are always kept. The dropped
// source names are returned in input order.
func Filter(sets []model.SourceObservationSet, match *JobMatch, minScore float64) (kept []model.SourceObservationSet, dropped []string) {
	if match == nil || match.JobCode == "" || match.MatchScore < minScore {
		return sets, nil
	}
	for _, s := range sets {
		if s.JobCode != "" && s.JobCode != match.JobCode {
			dropped = append(dropped, s.SourceName)
			continue
		}
		kept = append(kept, s)
	}
	return kept, dropped
}
