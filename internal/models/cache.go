package models

import (
	"time"
)

// Epoch marks a cache entry built from the local index only
var Epoch = time.Unix(0, 0).UTC()

// CacheSnapshot is the persisted form of a feed's cached result set
type CacheSnapshot struct {
	Identifier  string `gorm:"primaryKey;column:identifier" json:"identifier"`
	Content     string `gorm:"type:text;not null;column:content" json:"content"`
	RefreshedAt string `gorm:"type:text;not null;column:refreshedAt" json:"refreshedAt"`
}

// TableName specifies the table name for CacheSnapshot
func (CacheSnapshot) TableName() string {
	return "cache"
}
