package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/curatd/curatd/internal/domain/assignment"
	"github.com/curatd/curatd/internal/domain/decision"
	"github.com/curatd/curatd/internal/domain/instance"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listPendingReviewsTool(),
		s.getReviewStatusTool(),
		s.submitReviewDecisionTool(),
		s.listAttentionItemsTool(),
	)
}

func (s *Server) listPendingReviewsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_pending_reviews",
		mcplib.WithDescription("List open review assignments for a reviewer"),
		mcplib.WithString("reviewer_id",
			mcplib.Required(),
			mcplib.Description("The reviewer whose open assignments to list"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of assignments to return (default 50)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListPendingReviews,
	}
}

func (s *Server) getReviewStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_review_status",
		mcplib.WithDescription("Get the live workflow status of a content item"),
		mcplib.WithString("content_item_id",
			mcplib.Required(),
			mcplib.Description("The content item ID to check"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetReviewStatus,
	}
}

func (s *Server) submitReviewDecisionTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("submit_review_decision",
		mcplib.WithDescription("Approve or reject a content item awaiting review"),
		mcplib.WithString("content_item_id",
			mcplib.Required(),
			mcplib.Description("The content item the decision applies to"),
		),
		mcplib.WithString("reviewer_id",
			mcplib.Required(),
			mcplib.Description("The reviewer submitting the decision"),
		),
		mcplib.WithBoolean("approved",
			mcplib.Required(),
			mcplib.Description("true approves the item, false rejects it"),
		),
		mcplib.WithString("notes",
			mcplib.Description("Optional free-form reviewer notes"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleSubmitReviewDecision,
	}
}

func (s *Server) listAttentionItemsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_attention_items",
		mcplib.WithDescription("List workflow instances waiting on an operator"),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of instances to return (default 50)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListAttentionItems,
	}
}

func (s *Server) handleListPendingReviews(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Pending == nil {
		return mcplib.NewToolResultError("pending lister not configured"), nil
	}
	args := req.GetArguments()
	reviewerID, ok := args["reviewer_id"].(string)
	if !ok || reviewerID == "" {
		return mcplib.NewToolResultError("reviewer_id is required"), nil
	}
	assignments, err := s.deps.Pending.Pending(ctx, reviewerID, argLimit(args))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to list pending reviews for %s", reviewerID), err,
		), nil
	}
	if assignments == nil {
		assignments = []assignment.ReviewAssignment{}
	}
	data, err := json.Marshal(assignments)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal assignments", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleGetReviewStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Statuses == nil {
		return mcplib.NewToolResultError("status reader not configured"), nil
	}
	args := req.GetArguments()
	contentItemID, ok := args["content_item_id"].(string)
	if !ok || contentItemID == "" {
		return mcplib.NewToolResultError("content_item_id is required"), nil
	}
	status, err := s.deps.Statuses.StatusByContent(ctx, contentItemID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get status for %s", contentItemID), err,
		), nil
	}
	data, err := json.Marshal(status)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal status", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleSubmitReviewDecision(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Decisions == nil {
		return mcplib.NewToolResultError("decision submitter not configured"), nil
	}
	args := req.GetArguments()
	contentItemID, ok := args["content_item_id"].(string)
	if !ok || contentItemID == "" {
		return mcplib.NewToolResultError("content_item_id is required"), nil
	}
	reviewerID, ok := args["reviewer_id"].(string)
	if !ok || reviewerID == "" {
		return mcplib.NewToolResultError("reviewer_id is required"), nil
	}
	approved, ok := args["approved"].(bool)
	if !ok {
		return mcplib.NewToolResultError("approved is required"), nil
	}
	notes, _ := args["notes"].(string)

	sig := &decision.ReviewSignal{Approved: approved, ReviewerID: reviewerID, Notes: notes}
	if err := s.deps.Decisions.DecideByContent(ctx, contentItemID, sig); err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to submit decision for %s", contentItemID), err,
		), nil
	}
	data, err := json.Marshal(map[string]any{
		"content_item_id": contentItemID,
		"outcome":         sig.Outcome(),
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal decision result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleListAttentionItems(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Attention == nil {
		return mcplib.NewToolResultError("attention lister not configured"), nil
	}
	instances, err := s.deps.Attention.Attention(ctx, argLimit(req.GetArguments()))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list attention items", err), nil
	}
	if instances == nil {
		instances = []instance.WorkflowInstance{}
	}
	data, err := json.Marshal(instances)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal instances", err), nil
	}
	return toolResultJSON(string(data)), nil
}

// argLimit reads the optional limit argument, defaulting to 50.
func argLimit(args map[string]any) int {
	if l, ok := args["limit"].(float64); ok && int(l) > 0 {
		return int(l)
	}
	return 50
}

// toolResultJSON wraps pre-marshaled JSON as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
