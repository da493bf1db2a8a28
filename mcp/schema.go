package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/skillpay/x402-skills"
)

// Patterns are spliced into JSON documents, so backslashes are escaped
const (
	addressPattern = `^0x[0-9a-fA-F]{40}$`
	hashPattern    = `^0x[0-9a-fA-F]{64}$`
	amountPattern  = `^[0-9]+(\\.[0-9]+)?$`
	usdPattern     = `^\\$?[0-9]+(\\.[0-9]+)?$`
)

// argsSchema compiles a tool input schema once and validates call arguments
type argsSchema struct {
	raw      json.RawMessage
	compiled *gojsonschema.Schema
}

func mustSchema(schema string) argsSchema {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid tool schema: %v", err))
	}
	return argsSchema{raw: json.RawMessage(schema), compiled: compiled}
}

// validate checks args against the schema. Missing arguments count as {}.
func (s argsSchema) validate(args json.RawMessage) error {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}
	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return x402.NewValidationError(x402.ErrCodeInvalidArguments, fmt.Sprintf("arguments are not valid JSON: %v", err))
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return x402.NewValidationError(x402.ErrCodeInvalidArguments, strings.Join(problems, "; "))
}

var (
	balanceSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"address": {"type": "string", "pattern": "` + addressPattern + `", "description": "Ethereum address to check (0x...)"}
		},
		"required": ["address"]
	}`)

	txSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"hash": {"type": "string", "pattern": "` + hashPattern + `", "description": "Transaction hash (0x...)"}
		},
		"required": ["hash"]
	}`)

	priceSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"token": {"type": "string", "enum": ["ETH", "USDC", "WETH", "DAI", "USDT", "CBETH"], "description": "Token symbol"}
		},
		"required": ["token"]
	}`)

	emptySchema = mustSchema(`{"type": "object", "properties": {}}`)

	chatSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"message": {"type": "string", "minLength": 1, "description": "Your message to the agent"}
		},
		"required": ["message"]
	}`)

	sendSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"to": {"type": "string", "pattern": "` + addressPattern + `", "description": "Recipient address"},
			"amount": {"type": "string", "pattern": "` + amountPattern + `", "description": "Amount in whole tokens, e.g. \"0.5\""},
			"token": {"type": "string", "enum": ["ETH", "USDC"], "description": "Token to send, USDC by default"}
		},
		"required": ["to", "amount"]
	}`)

	paySchema = mustSchema(`{
		"type": "object",
		"properties": {
			"url": {"type": "string", "pattern": "^https?://", "description": "x402 endpoint to call"},
			"method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
			"body": {"description": "JSON request body"},
			"headers": {"type": "object", "additionalProperties": {"type": "string"}},
			"maxAmount": {"type": "string", "pattern": "^[0-9]+$", "description": "Maximum payment in atomic USDC, 1000000 by default"}
		},
		"required": ["url"]
	}`)

	setupSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"privateKey": {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]{64}$", "description": "Hex private key to import. A fresh key is generated when omitted."}
		}
	}`)

	spendLimitSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"limit": {"type": "string", "pattern": "` + usdPattern + `", "description": "Session budget in USD, e.g. \"1.00\""},
			"clear": {"type": "boolean", "description": "Remove the session budget"}
		},
		"anyOf": [{"required": ["limit"]}, {"required": ["clear"]}]
	}`)

	spendStatusSchema = mustSchema(`{
		"type": "object",
		"properties": {
			"reset": {"type": "boolean", "description": "Zero the spend history after reporting"}
		}
	}`)
)
