// Package search provides a small, deterministic in-memory index over rescue
// cases so dispatchers can find requests by free text ("yela om-3",
// "pirates crusader").
//
// An index is immutable once built and safe for concurrent use. Callers
// rebuild it when the case set changes; scoring is Jaccard similarity between
// the query token set and each case's token set:
//
//	score = |Q ∩ C| / |Q ∪ C|
//
// Ties are broken by newer case first, then by id, so results are stable.
package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tbourn/go-rescue-dispatch/internal/domain"
)

// Result is a ranked case with its similarity score.
type Result struct {
	CaseID string  `json:"case_id"`
	Score  float64 `json:"score"`
}

// Index is the minimal interface implemented by case indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// DefaultK is used when TopK is called with k <= 0.
const DefaultK = 5

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	stopwords map[string]struct{}
	status    domain.Status
}

// WithStopwords drops the given words from both case text and queries.
func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// WithStatus indexes only cases in the given status. Empty means all.
func WithStatus(s domain.Status) Option {
	return func(c *config) { c.status = s }
}

// DefaultStopwords are filler words common in request forms.
var DefaultStopwords = []string{
	"a", "an", "and", "at", "by", "for", "in", "is", "near", "of", "on", "the", "to", "with",
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	id      string
	created int64
	tokens  map[string]struct{}
}

type index struct {
	cfg  config
	docs []doc
}

// NewCaseIndex builds an Index from a snapshot of cases. Only the request
// form text and the system name are indexed.
func NewCaseIndex(cases []domain.Case, opts ...Option) Index {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	docs := make([]doc, 0, len(cases))
	for _, c := range cases {
		if c.ID == "" {
			continue
		}
		if cfg.status != "" && c.Status != cfg.status {
			continue
		}
		toks := tokenize(caseText(c.Form), cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{id: c.ID, created: c.CreatedAt.UnixNano(), tokens: toks})
	}
	return &index{cfg: cfg, docs: docs}
}

func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching cases by Jaccard similarity.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = DefaultK
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		id      string
		created int64
		score   float64
	}

	buf := make([]scored, 0, min(k*4, len(i.docs)))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + len(d.tokens) - over)
		buf = append(buf, scored{id: d.id, created: d.created, score: float64(over) / union})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].created != buf[b].created {
			return buf[a].created > buf[b].created
		}
		return buf[a].id < buf[b].id
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for i := 0; i < k; i++ {
		out[i] = Result{CaseID: buf[i].id, Score: buf[i].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

func caseText(f domain.RequestForm) string {
	return strings.Join([]string{f.Location, f.GalaxySystem, f.Cause, f.Hazards}, " ")
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
