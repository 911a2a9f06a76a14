package service

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/storyweft/storyweft/internal/mcp/domain"
)

func registerContextTools(mcpServer *mcp.Server, tracker domain.Tracker, server *Server, notify domain.ResourceUpdateNotifier) {
	mcp.AddTool(mcpServer, domain.ContextSetTool(), domain.ContextSetHandler(tracker, server.setContext, server.getContext, notify))
}

func registerTurnTools(mcpServer *mcp.Server, tracker domain.Tracker, getContext func() domain.Context, notify domain.ResourceUpdateNotifier) {
	mcp.AddTool(mcpServer, domain.TurnRecordTool(), domain.TurnRecordHandler(tracker, getContext, notify))
	mcp.AddTool(mcpServer, domain.SnapshotReplaceTool(), domain.SnapshotReplaceHandler(tracker, getContext, notify))
}

func registerReadTools(mcpServer *mcp.Server, tracker domain.Tracker, getContext func() domain.Context) {
	mcp.AddTool(mcpServer, domain.StateGetTool(), domain.StateGetHandler(tracker, getContext))
	mcp.AddTool(mcpServer, domain.EventsListTool(), domain.EventsListHandler(tracker, getContext))
	mcp.AddTool(mcpServer, domain.ChaptersListTool(), domain.ChaptersListHandler(tracker, getContext))
}

func registerNameTools(mcpServer *mcp.Server, tracker domain.Tracker, queue domain.PendingQueue, getContext func() domain.Context, notify domain.ResourceUpdateNotifier) {
	mcp.AddTool(mcpServer, domain.NamesPendingTool(), domain.NamesPendingHandler(queue, getContext))
	mcp.AddTool(mcpServer, domain.NamesConfirmTool(), domain.NamesConfirmHandler(tracker, queue, getContext, notify))
}

// registerChatResources registers readable per-chat MCP resources.
func registerChatResources(mcpServer *mcp.Server, tracker domain.Tracker) {
	mcpServer.AddResourceTemplate(domain.EventListResourceTemplate(), domain.EventListResourceHandler(tracker))
	mcpServer.AddResourceTemplate(domain.ChapterListResourceTemplate(), domain.ChapterListResourceHandler(tracker))
}

// registerContextResources registers the readable session context resource.
func registerContextResources(mcpServer *mcp.Server, server *Server) {
	mcpServer.AddResource(domain.ContextResource(), domain.ContextResourceHandler(server.getContext))
}
