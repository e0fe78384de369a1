package messagequeue

// ContentSubmittedPayload is the schema for reviews.content.submitted messages.
type ContentSubmittedPayload struct {
	ContentItemID string `json:"content_item_id"`
	InstanceID    string `json:"instance_id"`
	SubmitterID   string `json:"submitter_id"`
	CollectionID  string `json:"collection_id"`
}

// ReviewRequestedPayload is the schema for reviews.review.requested messages.
type ReviewRequestedPayload struct {
	ContentItemID string  `json:"content_item_id"`
	InstanceID    string  `json:"instance_id"`
	ReviewerID    string  `json:"reviewer_id"`
	Round         int     `json:"round"`
	Score         float64 `json:"score"`
}

// ReviewDecidedPayload is the schema for reviews.review.decided messages.
type ReviewDecidedPayload struct {
	ContentItemID string  `json:"content_item_id"`
	InstanceID    string  `json:"instance_id"`
	Kind          string  `json:"kind"`
	ReviewerID    string  `json:"reviewer_id,omitempty"`
	Score         float64 `json:"score"`
}

// InstanceFinishedPayload is the schema for reviews.instance.finished messages.
type InstanceFinishedPayload struct {
	ContentItemID string `json:"content_item_id"`
	InstanceID    string `json:"instance_id"`
	FinalState    string `json:"final_state"`
	DecisionKind  string `json:"decision_kind,omitempty"`
}

// RepairIndexPayload is the schema for reviews.repair.index messages. Side
// names the failed half of the fan-out; the succeeded half is never
// re-invoked.
type RepairIndexPayload struct {
	ContentItemID string   `json:"content_item_id"`
	InstanceID    string   `json:"instance_id"`
	Side          string   `json:"side"` // "search" or "graph"
	CollectionID  string   `json:"collection_id"`
	Title         string   `json:"title"`
	PayloadRef    string   `json:"payload_ref"`
	Score         float64  `json:"score"`
	Topics        []string `json:"topics,omitempty"`
	Entities      []string `json:"entities,omitempty"`
	Attempt       int      `json:"attempt"`
}

// RepairDonePayload is the schema for reviews.repair.done messages.
type RepairDonePayload struct {
	ContentItemID string `json:"content_item_id"`
	Side          string `json:"side"`
	ExternalURL   string `json:"external_url,omitempty"`
}
