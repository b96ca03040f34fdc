package models

// Identity is the caller a feed request is attributed to
type Identity struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
	Email  string `json:"email"`
}

// Anonymous is used when the request carries no authenticated identity
func Anonymous() Identity {
	return Identity{DID: "anonymous", Handle: "n/a"}
}

// SkeletonItem is one entry of a feed skeleton
type SkeletonItem struct {
	Post string `json:"post"`
}

// Skeleton is the feed skeleton returned to the protocol layer
type Skeleton struct {
	Cursor *string        `json:"cursor,omitempty"`
	Feed   []SkeletonItem `json:"feed"`
}

// EmptySkeleton is the response for feeds that can never match anything
func EmptySkeleton() Skeleton {
	return Skeleton{Feed: []SkeletonItem{}}
}
