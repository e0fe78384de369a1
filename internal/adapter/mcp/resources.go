package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"curatd://reviews/attention",
			"Operator Attention Queue",
			mcplib.WithResourceDescription("Workflow instances parked for operator intervention"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleAttentionResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"curatd://reviews/policy",
			"Review Routing Policy",
			mcplib.WithResourceDescription("The thresholds, SLA and retry bounds applied to new submissions"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handlePolicyResource,
	)
}

// jsonResource wraps a JSON document as the single contents entry for uri.
func jsonResource(uri, text string) []mcplib.ResourceContents {
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}
}

func (s *Server) handleAttentionResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Attention == nil {
		return jsonResource(req.Params.URI, `{"error":"attention lister not configured"}`), nil
	}
	instances, err := s.deps.Attention.Attention(ctx, 50)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(instances)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}

func (s *Server) handlePolicyResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Policies == nil {
		return jsonResource(req.Params.URI, `{"error":"policy reader not configured"}`), nil
	}
	policy := s.deps.Policies.Policy()
	data, err := json.Marshal(map[string]any{
		"reject_below":        policy.RejectBelow,
		"review_below":        policy.ReviewBelow,
		"approve_at_or_above": policy.ApproveAtOrAbove,
		"review_sla":          policy.SLA.String(),
		"timeout_policy":      policy.TimeoutPolicy,
		"max_assign_rounds":   policy.MaxAssignRounds,
		"empty_pool_fallback": policy.EmptyPoolFallback,
	})
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, string(data)), nil
}
