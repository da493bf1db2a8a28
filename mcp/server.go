package mcp

import (
	"context"
	"encoding/json"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	x402 "github.com/skillpay/x402-skills"
)

// Server identity reported to MCP clients
const (
	ServerName    = "skillpay"
	ServerVersion = "0.3.2"
)

// NewServer registers every plugin tool on a new MCP server
func NewServer(p *Plugin) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)

	for _, t := range p.tools() {
		server.AddTool(&mcpsdk.Tool{
			Name:        t.name,
			Description: t.description,
			InputSchema: t.schema.raw,
		}, p.handler(t))
	}
	return server
}

// Serve runs the plugin over stdio until ctx is done or the client disconnects
func Serve(ctx context.Context, p *Plugin) error {
	if address := p.Address(); address != "" {
		p.logger.Info("skillpay MCP server running", "wallet", address)
	} else {
		p.logger.Info("skillpay MCP server running without a wallet, use " + ToolSetup)
	}
	return NewServer(p).Run(ctx, &mcpsdk.StdioTransport{})
}

func (p *Plugin) handler(t tool) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := req.Params.Arguments
		if len(args) == 0 || string(args) == "null" {
			args = json.RawMessage("{}")
		}
		if err := t.schema.validate(args); err != nil {
			return errorResult(err), nil
		}

		text, err := t.run(ctx, args)
		if err != nil {
			p.logger.Warn("tool call failed", "tool", t.name, "error", err)
			return errorResult(err), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	text := "error: " + err.Error()
	var paymentErr *x402.PaymentError
	if errors.As(err, &paymentErr) && paymentErr.Code != "" {
		text = "error (" + paymentErr.Code + "): " + paymentErr.Message
	}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
