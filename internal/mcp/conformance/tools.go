//go:build conformance

package conformance

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Fixture names and payloads are matched verbatim by conformance clients;
// the text must stay stable across releases.
const (
	resourceFixtureName = "test_static_text"
	resourceFixtureURI  = "test://static-text"
	resourceFixtureText = "This is the content of the static text resource."
)

// textFixture is one fixed-output conformance tool.
type textFixture struct {
	name        string
	description string
	text        string
	isError     bool
}

var textFixtures = []textFixture{
	{
		name:        "test_simple_text",
		description: "Fixture tool with a fixed text response.",
		text:        "This is a simple text response for testing.",
	},
	{
		name:        "test_error_content",
		description: "Fixture tool with a fixed error response.",
		text:        "This is an error response for testing.",
		isError:     true,
	},
	{
		name:        "test_error_handling",
		description: "Fixture tool that always fails.",
		text:        "This tool intentionally returns an error for testing",
		isError:     true,
	},
}

// Register installs the fixture tools, prompt, and resource on mcpServer.
func Register(mcpServer *mcp.Server) {
	if mcpServer == nil {
		return
	}

	for _, fixture := range textFixtures {
		mcp.AddTool(mcpServer, fixture.tool(), fixture.handler())
	}
	mcp.AddTool(mcpServer, structuredEchoTool(), structuredEchoHandler())
	mcpServer.AddPrompt(promptFixture(), promptFixtureHandler())
	mcpServer.AddResource(resourceFixture(), resourceFixtureHandler())
}

func (f textFixture) tool() *mcp.Tool {
	return &mcp.Tool{Name: f.name, Description: f.description}
}

func (f textFixture) handler() mcp.ToolHandlerFor[struct{}, any] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
		result := &mcp.CallToolResult{
			IsError: f.isError,
			Content: []mcp.Content{&mcp.TextContent{Text: f.text}},
		}
		return result, nil, nil
	}
}

// StructuredEchoInput is the input for the structured content probe.
type StructuredEchoInput struct {
	Text string `json:"text,omitempty" jsonschema:"text to echo back"`
}

// StructuredEchoResult is the output of the structured content probe.
type StructuredEchoResult struct {
	Echo string `json:"echo" jsonschema:"echoed text"`
}

// structuredEchoTool probes structured-content round-trips, which every
// tracker tool result relies on.
func structuredEchoTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "test_structured_content",
		Description: "Fixture tool that echoes its input back as structured content.",
	}
}

func structuredEchoHandler() mcp.ToolHandlerFor[StructuredEchoInput, StructuredEchoResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input StructuredEchoInput) (*mcp.CallToolResult, StructuredEchoResult, error) {
		return nil, StructuredEchoResult{Echo: input.Text}, nil
	}
}

func promptFixture() *mcp.Prompt {
	return &mcp.Prompt{
		Name:        "test_simple_prompt",
		Description: "Fixture prompt with one fixed user message.",
	}
}

func promptFixtureHandler() mcp.PromptHandler {
	return func(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		message := &mcp.PromptMessage{
			Role:    "user",
			Content: &mcp.TextContent{Text: "This is a simple prompt for testing."},
		}
		return &mcp.GetPromptResult{Messages: []*mcp.PromptMessage{message}}, nil
	}
}

func resourceFixture() *mcp.Resource {
	return &mcp.Resource{
		Name:        resourceFixtureName,
		Description: "Fixture resource with fixed text content.",
		MIMEType:    "text/plain",
		URI:         resourceFixtureURI,
	}
}

func resourceFixtureHandler() mcp.ResourceHandler {
	return func(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		contents := &mcp.ResourceContents{
			URI:      resourceFixtureURI,
			MIMEType: "text/plain",
			Text:     resourceFixtureText,
		}
		return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{contents}}, nil
	}
}
