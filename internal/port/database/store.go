// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/content"
	"github.com/curatd/curatd/internal/domain/event"
	"github.com/curatd/curatd/internal/domain/instance"
)

// PartialRecord is a side-effect row that still has at least one failed side.
type PartialRecord struct {
	ContentItemID string                    `json:"content_item_id"`
	Result        instance.SideEffectResult `json:"result"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// Store is the port interface for database operations.
type Store interface {
	// Content items
	CreateContentItem(ctx context.Context, item *content.ContentItem) error
	GetContentItem(ctx context.Context, id string) (*content.ContentItem, error)
	UpdateContentStatus(ctx context.Context, id string, status content.Status) error

	// Workflow instances
	UpsertInstance(ctx context.Context, inst *instance.WorkflowInstance) error
	GetInstance(ctx context.Context, id string) (*instance.WorkflowInstance, error)
	GetInstanceByContentItem(ctx context.Context, contentItemID string) (*instance.WorkflowInstance, error)
	ListResumableInstances(ctx context.Context) ([]instance.WorkflowInstance, error)
	ListInstancesByState(ctx context.Context, state instance.State, limit int) ([]instance.WorkflowInstance, error)
	ArchiveTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Review assignments
	UpsertAssignment(ctx context.Context, a *assignment.ReviewAssignment) error
	LatestAssignment(ctx context.Context, contentItemID string) (*assignment.ReviewAssignment, error)
	CountActiveAssignments(ctx context.Context, reviewerID string) (int, error)
	ListPendingReviews(ctx context.Context, reviewerID string, limit int) ([]assignment.ReviewAssignment, error)

	// Rotation cursors
	GetCursor(ctx context.Context, collectionID string) (*assignment.Cursor, error)
	InitCursor(ctx context.Context, collectionID string) error
	// AdvanceCursor moves the cursor from one position to another only if
	// it still holds the expected value. Returns false on a lost race.
	AdvanceCursor(ctx context.Context, collectionID string, from, to int) (bool, error)

	// Side effects
	UpsertSideEffects(ctx context.Context, contentItemID string, r *instance.SideEffectResult) error
	GetSideEffects(ctx context.Context, contentItemID string) (*instance.SideEffectResult, error)
	MarkSideRepaired(ctx context.Context, contentItemID string, side instance.Side, externalURL string) error
	ListStalePartials(ctx context.Context, olderThan time.Time, limit int) ([]PartialRecord, error)

	// Audit
	CreateAuditRecord(ctx context.Context, rec *event.AuditRecord) error
	GetAuditRecord(ctx context.Context, contentItemID string) (*event.AuditRecord, error)
}
