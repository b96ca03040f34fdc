package models

// QueryTarget names the store a logged query ran against
type QueryTarget string

const (
	TargetIndex     QueryTarget = "index"
	TargetWarehouse QueryTarget = "warehouse"
)

// QueryLog is one executed physical query
type QueryLog struct {
	ID             uint64      `gorm:"primaryKey;autoIncrement;column:id"`
	FeedIdentifier string      `gorm:"type:text;not null;index;column:feedIdentifier"`
	UserDID        string      `gorm:"type:text;column:userDid"`
	UserHandle     string      `gorm:"type:text;column:userHandle"`
	Target         QueryTarget `gorm:"type:text;not null;column:target"`
	Query          string      `gorm:"type:text;not null;column:query"`
	Duration       int64       `gorm:"not null;column:duration"`
	Successful     bool        `gorm:"not null;column:successful"`
	ErrorMessage   string      `gorm:"type:text;column:errorMessage"`
	Timestamp      int64       `gorm:"not null;column:timestamp"`
	CreatedAt      string      `gorm:"type:text;not null;column:createdAt;autoCreateTime:false"`
}

// TableName specifies the table name for QueryLog
func (QueryLog) TableName() string {
	return "query_log"
}
