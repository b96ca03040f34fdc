package models

import (
	"slices"
	"strings"
)

// Operator combines content terms of a definition
type Operator string

const (
	OperatorOr  Operator = "OR"
	OperatorAnd Operator = "AND"
)

// FilterDefinition holds the inclusion and exclusion criteria of a feed
type FilterDefinition struct {
	Authors         []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	ExcludeAuthors  []string `json:"excludeAuthors,omitempty" yaml:"excludeAuthors,omitempty"`
	Hashtags        []string `json:"hashtags,omitempty" yaml:"hashtags,omitempty"`
	ExcludeHashtags []string `json:"excludeHashtags,omitempty" yaml:"excludeHashtags,omitempty"`
	Mentions        []string `json:"mentions,omitempty" yaml:"mentions,omitempty"`
	ExcludeMentions []string `json:"excludeMentions,omitempty" yaml:"excludeMentions,omitempty"`
	Search          []string `json:"search,omitempty" yaml:"search,omitempty"`
	ExcludeSearch   []string `json:"excludeSearch,omitempty" yaml:"excludeSearch,omitempty"`
	AtURIs          []string `json:"atUris,omitempty" yaml:"atUris,omitempty"`
	ExcludeAtURIs   []string `json:"excludeAtUris,omitempty" yaml:"excludeAtUris,omitempty"`
	Operator        Operator `json:"operator,omitempty" yaml:"operator,omitempty"`
	// Advanced makes Operator govern inclusion matching only
	Advanced bool `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// Normalize trims every term, drops empty and duplicate ones, prefixes hashtags with '#'
// and mentions with '@', and defaults the operator to OR.
func (d FilterDefinition) Normalize() FilterDefinition {
	out := FilterDefinition{
		Authors:         cleanTerms(d.Authors, ""),
		ExcludeAuthors:  cleanTerms(d.ExcludeAuthors, ""),
		Hashtags:        cleanTerms(d.Hashtags, "#"),
		ExcludeHashtags: cleanTerms(d.ExcludeHashtags, "#"),
		Mentions:        cleanTerms(d.Mentions, "@"),
		ExcludeMentions: cleanTerms(d.ExcludeMentions, "@"),
		Search:          cleanTerms(d.Search, ""),
		ExcludeSearch:   cleanTerms(d.ExcludeSearch, ""),
		AtURIs:          cleanTerms(d.AtURIs, ""),
		ExcludeAtURIs:   cleanTerms(d.ExcludeAtURIs, ""),
		Operator:        OperatorOr,
		Advanced:        d.Advanced,
	}
	if Operator(strings.ToUpper(string(d.Operator))) == OperatorAnd {
		out.Operator = OperatorAnd
	}
	return out
}

// HasInclusion reports whether any author or content inclusion term is set
func (d FilterDefinition) HasInclusion() bool {
	return len(d.Authors) > 0 || len(d.Hashtags) > 0 || len(d.Mentions) > 0 || len(d.Search) > 0
}

// HasExclusion reports whether any author or content exclusion term is set
func (d FilterDefinition) HasExclusion() bool {
	return len(d.ExcludeAuthors) > 0 || len(d.ExcludeHashtags) > 0 ||
		len(d.ExcludeMentions) > 0 || len(d.ExcludeSearch) > 0
}

// IsNothing reports whether the definition can never produce an entry
func (d FilterDefinition) IsNothing() bool {
	return !d.HasInclusion() && !d.HasExclusion() && len(d.AtURIs) == 0
}

// MatchingEqual reports whether both definitions select the same records.
// Terms are compared after normalisation and independent of order.
func (d FilterDefinition) MatchingEqual(other FilterDefinition) bool {
	a, b := d.Normalize(), other.Normalize()
	return a.Operator == b.Operator && a.Advanced == b.Advanced &&
		sameSet(a.Authors, b.Authors) && sameSet(a.ExcludeAuthors, b.ExcludeAuthors) &&
		sameSet(a.Hashtags, b.Hashtags) && sameSet(a.ExcludeHashtags, b.ExcludeHashtags) &&
		sameSet(a.Mentions, b.Mentions) && sameSet(a.ExcludeMentions, b.ExcludeMentions) &&
		sameSet(a.Search, b.Search) && sameSet(a.ExcludeSearch, b.ExcludeSearch) &&
		sameSet(a.AtURIs, b.AtURIs) && sameSet(a.ExcludeAtURIs, b.ExcludeAtURIs)
}

func cleanTerms(terms []string, prefix string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if prefix != "" {
			term = strings.TrimSpace(strings.TrimLeft(term, prefix))
			if term == "" {
				continue
			}
			term = prefix + term
		}
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
