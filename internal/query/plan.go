// Package query compiles filter definitions into an expression tree and translates
// that tree into local index and warehouse queries.
package query

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/skyfeed/skyfeed/internal/models"
)

// Kind is the type of an expression node
type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindAuthors
	KindTerm
)

// TermKind distinguishes content terms
type TermKind int

const (
	TermHashtag TermKind = iota
	TermMention
	TermSearch
)

// Expr is a node of the filter expression tree
type Expr struct {
	Kind     Kind
	Children []*Expr
	// Authors is set on KindAuthors nodes
	Authors []string
	// Term and Value are set on KindTerm nodes
	Term  TermKind
	Value string
}

// Plan is a compiled filter definition.
// A record matches when it satisfies Include (if any) and does not satisfy Exclude.
type Plan struct {
	Include     *Expr
	Exclude     *Expr
	AtURIs      []string
	ExcludeURIs map[string]struct{}
}

// Compile normalises def and builds its plan
func Compile(def models.FilterDefinition) Plan {
	def = def.Normalize()

	var include []*Expr
	if len(def.Authors) > 0 {
		include = append(include, &Expr{Kind: KindAuthors, Authors: def.Authors})
	}
	contentOp := KindOr
	if def.Operator == models.OperatorAnd {
		contentOp = KindAnd
	}
	if content := join(contentOp, terms(def.Hashtags, def.Mentions, def.Search)); content != nil {
		include = append(include, content)
	}

	var exclude []*Expr
	if len(def.ExcludeAuthors) > 0 {
		exclude = append(exclude, &Expr{Kind: KindAuthors, Authors: def.ExcludeAuthors})
	}
	exclude = append(exclude, terms(def.ExcludeHashtags, def.ExcludeMentions, def.ExcludeSearch)...)

	plan := Plan{
		Include: join(KindAnd, include),
		Exclude: join(KindOr, exclude),
		AtURIs:  def.AtURIs,
	}
	if len(def.ExcludeAtURIs) > 0 {
		plan.ExcludeURIs = make(map[string]struct{}, len(def.ExcludeAtURIs))
		for _, uri := range def.ExcludeAtURIs {
			plan.ExcludeURIs[uri] = struct{}{}
		}
	}
	return plan
}

func terms(hashtags, mentions, search []string) []*Expr {
	var out []*Expr
	for _, v := range hashtags {
		out = append(out, &Expr{Kind: KindTerm, Term: TermHashtag, Value: v})
	}
	for _, v := range mentions {
		out = append(out, &Expr{Kind: KindTerm, Term: TermMention, Value: v})
	}
	for _, v := range search {
		out = append(out, &Expr{Kind: KindTerm, Term: TermSearch, Value: v})
	}
	return out
}

func join(kind Kind, children []*Expr) *Expr {
	switch len(children) {
	case 0:
		return nil
	case 1:
		return children[0]
	default:
		return &Expr{Kind: kind, Children: children}
	}
}

// Empty reports whether the plan has neither inclusion nor exclusion criteria.
// Such a plan selects no stored record.
func (p Plan) Empty() bool {
	return p.Include == nil && p.Exclude == nil
}

// Match evaluates the plan against a record.
// Hashtags and mentions match only when followed by whitespace or the end of the text,
// search terms match as substrings; all comparisons ignore case.
func (p Plan) Match(post models.Post) bool {
	if p.Empty() {
		return false
	}
	if _, ok := p.ExcludeURIs[post.URI]; ok {
		return false
	}
	text := cases.Fold().String(post.Text)
	if p.Include != nil && !p.Include.eval(post.Author, text) {
		return false
	}
	return p.Exclude == nil || !p.Exclude.eval(post.Author, text)
}

func (e *Expr) eval(author, foldedText string) bool {
	switch e.Kind {
	case KindAnd:
		for _, c := range e.Children {
			if !c.eval(author, foldedText) {
				return false
			}
		}
		return true
	case KindOr:
		for _, c := range e.Children {
			if c.eval(author, foldedText) {
				return true
			}
		}
		return false
	case KindAuthors:
		return slices.Contains(e.Authors, author)
	case KindTerm:
		term := cases.Fold().String(e.Value)
		if e.Term == TermSearch {
			return strings.Contains(foldedText, term)
		}
		return containsBounded(foldedText, term)
	}
	return false
}

// containsBounded reports whether term occurs in text followed by whitespace or the end of text
func containsBounded(text, term string) bool {
	if term == "" {
		return false
	}
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			return false
		}
		end := offset + i + len(term)
		if end == len(text) {
			return true
		}
		if r, _ := utf8.DecodeRuneInString(text[end:]); unicode.IsSpace(r) {
			return true
		}
		offset += i + 1
	}
	return false
}
