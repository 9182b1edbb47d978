// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/leadflow/internal/adapters/server/common"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing the pipeline tools.
func NewHandler(cfg Config, pipeline common.PipelineService) (*Handler, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerBoardTool(mcpSrv, pipeline)
	registerMoveTools(mcpSrv, pipeline)
	registerRecordTools(mcpSrv, pipeline)
	registerBulkTool(mcpSrv, pipeline)
	registerChangesTool(mcpSrv, pipeline)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "leadflow"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerBoardTool registers the `leadflow.board` tool.
func registerBoardTool(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"leadflow.board",
			mcp.WithDescription("Return the pipeline board: stages in order with their leads, the selection and any active drag session."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			board, err := pipeline.Board(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(board)
			if err != nil {
				return nil, fmt.Errorf("encode board result: %w", err)
			}
			return result, nil
		},
	)
}

// registerMoveTools registers `leadflow.move_lead` and `leadflow.reorder_stages`.
func registerMoveTools(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"leadflow.move_lead",
			mcp.WithDescription("Move one lead to an index within a stage. Indexes past the end append."),
			mcp.WithString("lead_id", mcp.Required(), mcp.Description("Lead identifier")),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("Destination stage identifier")),
			mcp.WithNumber("index", mcp.Description("Destination index within the stage (default 0)")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			leadID, err := req.RequireString("lead_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			stageID, err := req.RequireString("stage_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			lead, err := pipeline.MoveLead(ctx, common.MoveLeadRequest{
				LeadID:  leadID,
				StageID: stageID,
				Index:   req.GetInt("index", 0),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(lead)
			if err != nil {
				return nil, fmt.Errorf("encode move_lead result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"leadflow.reorder_stages",
			mcp.WithDescription("Move one stage into another stage's slot, shifting the stages in between."),
			mcp.WithString("source_id", mcp.Required(), mcp.Description("Stage to move")),
			mcp.WithString("target_id", mcp.Required(), mcp.Description("Stage whose slot it takes")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			sourceID, err := req.RequireString("source_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			targetID, err := req.RequireString("target_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			stages, err := pipeline.ReorderStages(ctx, common.ReorderStagesRequest{
				SourceID: sourceID,
				TargetID: targetID,
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"stages": stages,
			})
			if err != nil {
				return nil, fmt.Errorf("encode reorder_stages result: %w", err)
			}
			return result, nil
		},
	)
}

// registerRecordTools registers the lead and stage record tools.
func registerRecordTools(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"leadflow.create_lead",
			mcp.WithDescription("Create one lead at the end of a stage."),
			mcp.WithString("stage_id", mcp.Required(), mcp.Description("Stage identifier")),
			mcp.WithString("name", mcp.Required(), mcp.Description("Lead display name")),
			mcp.WithString("email", mcp.Description("Contact email")),
			mcp.WithString("phone", mcp.Description("Contact phone")),
			mcp.WithNumber("score", mcp.Description("Lead score from 0 to 100")),
			mcp.WithString("notes", mcp.Description("Markdown notes")),
			mcp.WithString("owner", mcp.Description("Owner; defaults to the configured owner")),
			mcp.WithString("source", mcp.Description("Where the lead came from")),
			mcp.WithArray("tags", mcp.Description("Free-form tags"), mcp.WithStringItems()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			stageID, err := req.RequireString("stage_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			name, err := req.RequireString("name")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			lead, err := pipeline.CreateLead(ctx, common.CreateLeadRequest{
				StageID: stageID,
				Name:    name,
				Email:   req.GetString("email", ""),
				Phone:   req.GetString("phone", ""),
				Score:   req.GetInt("score", 0),
				Notes:   req.GetString("notes", ""),
				Owner:   req.GetString("owner", ""),
				Source:  req.GetString("source", ""),
				Tags:    req.GetStringSlice("tags", nil),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(lead)
			if err != nil {
				return nil, fmt.Errorf("encode create_lead result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"leadflow.get_lead",
			mcp.WithDescription("Return one lead with its notes."),
			mcp.WithString("lead_id", mcp.Required(), mcp.Description("Lead identifier")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			leadID, err := req.RequireString("lead_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			lead, err := pipeline.GetLead(ctx, leadID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(lead)
			if err != nil {
				return nil, fmt.Errorf("encode get_lead result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"leadflow.update_lead",
			mcp.WithDescription("Edit a lead's record fields. Omitted fields keep their value; use move_lead to change stage."),
			mcp.WithString("lead_id", mcp.Required(), mcp.Description("Lead identifier")),
			mcp.WithString("name", mcp.Description("Lead display name")),
			mcp.WithString("email", mcp.Description("Contact email")),
			mcp.WithString("phone", mcp.Description("Contact phone")),
			mcp.WithNumber("score", mcp.Description("Lead score from 0 to 100")),
			mcp.WithString("notes", mcp.Description("Markdown notes")),
			mcp.WithArray("tags", mcp.Description("Replacement tag list"), mcp.WithStringItems()),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			leadID, err := req.RequireString("lead_id")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			lead, err := pipeline.UpdateLead(ctx, updateRequestFrom(leadID, req))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(lead)
			if err != nil {
				return nil, fmt.Errorf("encode update_lead result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"leadflow.list_stages",
			mcp.WithDescription("List pipeline stages in board order."),
		),
		func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			stages, err := pipeline.ListStages(ctx)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"stages": stages,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_stages result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"leadflow.create_stage",
			mcp.WithDescription("Append one stage after the last stage."),
			mcp.WithString("name", mcp.Required(), mcp.Description("Stage display name")),
			mcp.WithString("color", mcp.Description("Hex color such as #3b82f6")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			name, err := req.RequireString("name")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			stage, err := pipeline.CreateStage(ctx, common.CreateStageRequest{
				Name:  name,
				Color: req.GetString("color", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(stage)
			if err != nil {
				return nil, fmt.Errorf("encode create_stage result: %w", err)
			}
			return result, nil
		},
	)
}

// updateRequestFrom keeps only the arguments the caller actually sent.
func updateRequestFrom(leadID string, req mcp.CallToolRequest) common.UpdateLeadRequest {
	out := common.UpdateLeadRequest{LeadID: leadID}
	args := req.GetArguments()
	text := func(key string) *string {
		if _, ok := args[key]; !ok {
			return nil
		}
		v := req.GetString(key, "")
		return &v
	}
	out.Name = text("name")
	out.Email = text("email")
	out.Phone = text("phone")
	out.Notes = text("notes")
	if _, ok := args["score"]; ok {
		score := req.GetInt("score", 0)
		out.Score = &score
	}
	if _, ok := args["tags"]; ok {
		tags := req.GetStringSlice("tags", []string{})
		out.Tags = &tags
	}
	return out
}

// registerBulkTool registers `leadflow.bulk_apply`. The call replaces the
// selection with lead_ids and applies the action in one step.
func registerBulkTool(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"leadflow.bulk_apply",
			mcp.WithDescription("Apply one action to a set of leads. Unknown lead ids are skipped."),
			mcp.WithString("action", mcp.Required(), mcp.Description("Bulk action"), mcp.Enum("move", "assign_owner", "remove")),
			mcp.WithArray("lead_ids", mcp.Required(), mcp.Description("Leads to act on"), mcp.WithStringItems()),
			mcp.WithString("stage_id", mcp.Description("Destination stage for move")),
			mcp.WithString("owner", mcp.Description("New owner for assign_owner")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			action, err := req.RequireString("action")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			leadIDs, err := req.RequireStringSlice("lead_ids")
			if err != nil {
				return invalidRequestToolResult(err), nil
			}
			if len(leadIDs) == 0 {
				return invalidRequestToolResult(errors.New("lead_ids must not be empty")), nil
			}
			if _, err := pipeline.SelectAll(ctx, common.SelectAllRequest{LeadIDs: leadIDs}); err != nil {
				return toolResultFromError(err), nil
			}
			out, err := pipeline.ApplyBulk(ctx, common.BulkRequest{
				Action:  action,
				StageID: req.GetString("stage_id", ""),
				Owner:   req.GetString("owner", ""),
			})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode bulk_apply result: %w", err)
			}
			return result, nil
		},
	)
}

// registerChangesTool registers `leadflow.list_changes`.
func registerChangesTool(srv *mcpserver.MCPServer, pipeline common.PipelineService) {
	srv.AddTool(
		mcp.NewTool(
			"leadflow.list_changes",
			mcp.WithDescription("List recent persisted board changes, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum rows to return")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			changes, err := pipeline.ListChanges(ctx, req.GetInt("limit", 25))
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(map[string]any{
				"changes": changes,
			})
			if err != nil {
				return nil, fmt.Errorf("encode list_changes result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("drag_conflict: " + err.Error())
	case errors.Is(err, common.ErrUnavailable):
		return mcp.NewToolResultError("service_unavailable: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// invalidRequestToolResult wraps argument-binding failures as deterministic tool errors.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
