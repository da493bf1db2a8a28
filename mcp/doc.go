// Package mcp exposes SkillPay skills as MCP tools.
//
// Each paid tool call runs through the skill client, which answers the
// server's 402 with a signed USDC authorization. A per-session spend
// governor caps what an agent can spend:
//
//	governor := spend.New()
//	plugin, _ := mcp.NewPlugin(mcp.Config{APIURL: "http://localhost:4020"}, governor)
//	server := mcp.NewServer(plugin)
//	_ = server.Run(ctx, &mcpsdk.StdioTransport{})
//
// The signing key is optional at startup. Without one, paid tools fail
// until skillpay_setup imports or generates a key.
package mcp
