package models

import (
	"testing"
	"time"
)

func TestFilterDefinitionNormalize(t *testing.T) {
	def := FilterDefinition{
		Authors:  []string{" did:plc:a ", "", "did:plc:a"},
		Hashtags: []string{"cats", " #dogs", "#", "  "},
		Mentions: []string{"alice.bsky.social", "@bob.test"},
		Search:   []string{" hello world "},
		Operator: "and",
	}

	got := def.Normalize()

	if len(got.Authors) != 1 || got.Authors[0] != "did:plc:a" {
		t.Errorf("Authors = %v", got.Authors)
	}
	if len(got.Hashtags) != 2 || got.Hashtags[0] != "#cats" || got.Hashtags[1] != "#dogs" {
		t.Errorf("Hashtags = %v", got.Hashtags)
	}
	if len(got.Mentions) != 2 || got.Mentions[0] != "@alice.bsky.social" || got.Mentions[1] != "@bob.test" {
		t.Errorf("Mentions = %v", got.Mentions)
	}
	if len(got.Search) != 1 || got.Search[0] != "hello world" {
		t.Errorf("Search = %v", got.Search)
	}
	if got.Operator != OperatorAnd {
		t.Errorf("Operator = %s, want AND", got.Operator)
	}
	if (FilterDefinition{}).Normalize().Operator != OperatorOr {
		t.Error("Expected OR as default operator")
	}
}

func TestFilterDefinitionIsNothing(t *testing.T) {
	tests := []struct {
		name string
		def  FilterDefinition
		want bool
	}{
		{name: "empty", def: FilterDefinition{}, want: true},
		{name: "operator only", def: FilterDefinition{Operator: OperatorAnd, Advanced: true}, want: true},
		{name: "hashtag", def: FilterDefinition{Hashtags: []string{"#cats"}}, want: false},
		{name: "exclusion only", def: FilterDefinition{ExcludeAuthors: []string{"did:plc:x"}}, want: false},
		{name: "pinned uri", def: FilterDefinition{AtURIs: []string{"at://x/app.bsky.feed.post/1"}}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.def.IsNothing(); got != tt.want {
				t.Errorf("IsNothing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterDefinitionMatchingEqual(t *testing.T) {
	a := FilterDefinition{Hashtags: []string{"cats", "dogs"}}
	b := FilterDefinition{Hashtags: []string{"#dogs", "#cats"}, Operator: OperatorOr}
	if !a.MatchingEqual(b) {
		t.Error("Expected definitions differing only in order and prefix to match")
	}

	c := FilterDefinition{Hashtags: []string{"cats", "dogs"}, Operator: OperatorAnd}
	if a.MatchingEqual(c) {
		t.Error("Expected operator change to be a matching change")
	}
}

func TestPostTimestamp(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	indexed := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)

	tests := []struct {
		name   string
		post   Post
		want   time.Time
		wantOK bool
	}{
		{name: "createdAt", post: Post{CreatedAt: FormatTime(created), IndexedAt: FormatTime(indexed)}, want: created, wantOK: true},
		{name: "invalid createdAt falls back", post: Post{CreatedAt: "yesterday", IndexedAt: FormatTime(indexed)}, want: indexed, wantOK: true},
		{name: "missing createdAt falls back", post: Post{IndexedAt: FormatTime(indexed)}, want: indexed, wantOK: true},
		{name: "nothing parses", post: Post{CreatedAt: "?", IndexedAt: ""}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.post.Timestamp()
			if ok != tt.wantOK {
				t.Fatalf("Timestamp() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Timestamp() = %s, want %s", got, tt.want)
			}
		})
	}
}
