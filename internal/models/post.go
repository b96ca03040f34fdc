package models

import (
	"time"
)

// TimeLayout is the millisecond-precision UTC layout used for every stored timestamp
const TimeLayout = "2006-01-02T15:04:05.000Z"

// PostCollection is the record collection ingested from the firehose
const PostCollection = "app.bsky.feed.post"

// Post is an ingested content record. Records are immutable and identified by URI.
type Post struct {
	URI       string `gorm:"primaryKey;column:uri" json:"uri"`
	CID       string `gorm:"type:text;column:cid" json:"cid,omitempty"`
	Author    string `gorm:"type:text;not null;index;column:author" json:"author"`
	Text      string `gorm:"type:text;not null;column:text" json:"text"`
	IndexedAt string `gorm:"type:text;not null;index;column:indexedAt" json:"indexedAt"`
	CreatedAt string `gorm:"type:text;column:createdAt;autoCreateTime:false" json:"createdAt"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "post"
}

// Timestamp returns the time the record is ordered and paginated by: the author-declared
// createdAt when it parses, otherwise indexedAt.
func (p Post) Timestamp() (time.Time, bool) {
	if t, ok := ParseTime(p.CreatedAt); ok {
		return t, true
	}
	return ParseTime(p.IndexedAt)
}

// PostURI builds the AT URI of a post record
func PostURI(did, rkey string) string {
	return "at://" + did + "/" + PostCollection + "/" + rkey
}

// FormatTime formats t in TimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses an RFC 3339 timestamp, reporting false for empty or malformed input
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
