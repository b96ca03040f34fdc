package indexer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/skyfeed/skyfeed/internal/models"
)

const (
	kindCommit      = "commit"
	operationCreate = "create"
)

// jetstreamEvent is the raw JSON structure from Jetstream
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the commit part of an event
type jetstreamCommit struct {
	Rev        string      `json:"rev"`
	Operation  string      `json:"operation"`
	Collection string      `json:"collection"`
	RKey       string      `json:"rkey"`
	Record     *postRecord `json:"record,omitempty"`
	CID        string      `json:"cid"`
}

// postRecord is the content of an app.bsky.feed.post record
type postRecord struct {
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

// parseEvent decodes an event in two passes so that records of other
// collections are never decoded as posts
func parseEvent(data []byte) (*jetstreamEvent, error) {
	var raw struct {
		DID    string          `json:"did"`
		TimeUS int64           `json:"time_us"`
		Kind   string          `json:"kind"`
		Commit json.RawMessage `json:"commit,omitempty"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}

	event := &jetstreamEvent{DID: raw.DID, TimeUS: raw.TimeUS, Kind: raw.Kind}
	if raw.Kind != kindCommit || len(raw.Commit) == 0 {
		return event, nil
	}

	var rc struct {
		Rev        string          `json:"rev"`
		Operation  string          `json:"operation"`
		Collection string          `json:"collection"`
		RKey       string          `json:"rkey"`
		Record     json.RawMessage `json:"record,omitempty"`
		CID        string          `json:"cid"`
	}
	if err := json.Unmarshal(raw.Commit, &rc); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}

	commit := &jetstreamCommit{
		Rev:        rc.Rev,
		Operation:  rc.Operation,
		Collection: rc.Collection,
		RKey:       rc.RKey,
		CID:        rc.CID,
	}
	if len(rc.Record) > 0 && isPostCollection(rc.Collection) && rc.Operation == operationCreate {
		var record postRecord
		if err := json.Unmarshal(rc.Record, &record); err != nil {
			return nil, fmt.Errorf("unmarshal post record: %w", err)
		}
		commit.Record = &record
	}
	event.Commit = commit

	return event, nil
}

// isPostCollection reports whether a commit targets posts.
// Commits without a collection come from a stream already filtered to posts.
func isPostCollection(collection string) bool {
	return collection == "" || collection == models.PostCollection
}

// post converts a post-creation event into a record indexed at now.
// It reports false for every other event and for creations missing identifying fields.
func (e *jetstreamEvent) post(now time.Time) (models.Post, bool) {
	if e.Kind != kindCommit || e.Commit == nil {
		return models.Post{}, false
	}
	c := e.Commit
	if c.Operation != operationCreate || !isPostCollection(c.Collection) || c.Record == nil {
		return models.Post{}, false
	}
	if e.DID == "" || c.RKey == "" || c.CID == "" || c.Record.CreatedAt == "" {
		return models.Post{}, false
	}

	return models.Post{
		URI:       models.PostURI(e.DID, c.RKey),
		CID:       c.CID,
		Author:    e.DID,
		Text:      c.Record.Text,
		IndexedAt: models.FormatTime(now),
		CreatedAt: c.Record.CreatedAt,
	}, true
}
