package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skyfeed/skyfeed/internal/models"
)

func TestPlanMatch(t *testing.T) {
	tests := []struct {
		name string
		def  models.FilterDefinition
		post models.Post
		want bool
	}{
		{
			name: "hashtag followed by whitespace",
			def:  models.FilterDefinition{Hashtags: []string{"#cats"}},
			post: models.Post{Text: "I love #cats today"},
			want: true,
		},
		{
			name: "hashtag inside a longer word",
			def:  models.FilterDefinition{Hashtags: []string{"#cats"}},
			post: models.Post{Text: "I love #catsandwine"},
			want: false,
		},
		{
			name: "hashtag at end of text ignores case",
			def:  models.FilterDefinition{Hashtags: []string{"cats"}},
			post: models.Post{Text: "I love #Cats"},
			want: true,
		},
		{
			name: "second occurrence is bounded",
			def:  models.FilterDefinition{Hashtags: []string{"#cats"}},
			post: models.Post{Text: "#catsandwine and #cats\nagain"},
			want: true,
		},
		{
			name: "mention boundary",
			def:  models.FilterDefinition{Mentions: []string{"alice.bsky.social"}},
			post: models.Post{Text: "hi @alice.bsky.socialite"},
			want: false,
		},
		{
			name: "search is a substring match",
			def:  models.FilterDefinition{Search: []string{"Bread"}},
			post: models.Post{Text: "sourdough breadmaking"},
			want: true,
		},
		{
			name: "AND requires every content term",
			def:  models.FilterDefinition{Hashtags: []string{"#cats", "#dogs"}, Operator: models.OperatorAnd},
			post: models.Post{Text: "#cats only"},
			want: false,
		},
		{
			name: "OR accepts any content term",
			def:  models.FilterDefinition{Hashtags: []string{"#cats", "#dogs"}},
			post: models.Post{Text: "#dogs only"},
			want: true,
		},
		{
			name: "authors and content are conjunctive",
			def:  models.FilterDefinition{Authors: []string{"did:plc:a"}, Hashtags: []string{"#cats"}},
			post: models.Post{Author: "did:plc:b", Text: "#cats"},
			want: false,
		},
		{
			name: "excluded author overrides inclusion",
			def:  models.FilterDefinition{Hashtags: []string{"#cats"}, ExcludeAuthors: []string{"did:plc:spam"}},
			post: models.Post{Author: "did:plc:spam", Text: "#cats"},
			want: false,
		},
		{
			name: "exclusion applies under advanced AND",
			def:  models.FilterDefinition{Hashtags: []string{"#cats"}, ExcludeHashtags: []string{"#nsfw"}, Operator: models.OperatorAnd, Advanced: true},
			post: models.Post{Text: "#cats #nsfw"},
			want: false,
		},
		{
			name: "exclude only keeps everything else",
			def:  models.FilterDefinition{ExcludeSearch: []string{"spoiler"}},
			post: models.Post{Text: "nothing to see"},
			want: true,
		},
		{
			name: "excluded uri",
			def:  models.FilterDefinition{Hashtags: []string{"#cats"}, ExcludeAtURIs: []string{"at://x/app.bsky.feed.post/1"}},
			post: models.Post{URI: "at://x/app.bsky.feed.post/1", Text: "#cats"},
			want: false,
		},
		{
			name: "empty definition matches nothing",
			def:  models.FilterDefinition{},
			post: models.Post{Text: "anything"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Compile(tt.def).Match(tt.post))
		})
	}
}

func TestCompileShape(t *testing.T) {
	plan := Compile(models.FilterDefinition{
		Authors:        []string{"did:plc:a", "did:plc:b"},
		Hashtags:       []string{"#cats"},
		Search:         []string{"kitten"},
		ExcludeAuthors: []string{"did:plc:c"},
		AtURIs:         []string{"at://pinned"},
	})

	if assert.NotNil(t, plan.Include) {
		assert.Equal(t, KindAnd, plan.Include.Kind)
		assert.Len(t, plan.Include.Children, 2)
		assert.Equal(t, KindAuthors, plan.Include.Children[0].Kind)
		assert.Equal(t, KindOr, plan.Include.Children[1].Kind)
	}
	if assert.NotNil(t, plan.Exclude) {
		assert.Equal(t, KindAuthors, plan.Exclude.Kind)
	}
	assert.Equal(t, []string{"at://pinned"}, plan.AtURIs)
	assert.False(t, plan.Empty())
	assert.True(t, Compile(models.FilterDefinition{AtURIs: []string{"at://pinned"}}).Empty())
}
