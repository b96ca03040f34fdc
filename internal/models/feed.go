package models

import (
	"time"
)

// FeedGeneratorCollection is the collection of feed generator records
const FeedGeneratorCollection = "app.bsky.feed.generator"

// Feed is a published feed and its filter definition
type Feed struct {
	Identifier  string           `gorm:"primaryKey;column:identifier" yaml:"identifier,omitempty"`
	DID         string           `gorm:"type:text;not null;uniqueIndex:idx_feed_did_slug;column:did" yaml:"did"`
	Slug        string           `gorm:"type:text;not null;uniqueIndex:idx_feed_did_slug;column:slug" yaml:"slug"`
	DisplayName string           `gorm:"type:text;column:displayName" yaml:"displayName,omitempty"`
	Description string           `gorm:"type:text;column:description" yaml:"description,omitempty"`
	Definition  FilterDefinition `gorm:"type:text;serializer:json;column:definition" yaml:"definition"`
	CreatedAt   time.Time        `gorm:"column:createdAt" yaml:"-"`
	UpdatedAt   time.Time        `gorm:"column:updatedAt" yaml:"-"`
}

// TableName specifies the table name for Feed
func (Feed) TableName() string {
	return "feed"
}

// FeedIdentifier derives the identifier of a feed published by did under slug
func FeedIdentifier(did, slug string) string {
	return did + "/" + slug
}

// URI returns the AT URI of the feed generator record
func (f *Feed) URI() string {
	return "at://" + f.DID + "/" + FeedGeneratorCollection + "/" + f.Slug
}
