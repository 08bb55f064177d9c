package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/shopspring/decimal"
)

// ProductionProposal is a structured production request extracted from free
// text. It is a proposal only: the caller must route it through the normal
// order creation path, which validates the product, BOM, and warehouse.
type ProductionProposal struct {
	ProductCode   string  `json:"product_code" jsonschema_description:"Product code from the catalog, e.g. FG-100"`
	Quantity      string  `json:"quantity" jsonschema_description:"Quantity to produce as an exact decimal string, e.g. 50 or 12.5"`
	WarehouseCode string  `json:"warehouse_code" jsonschema_description:"Target warehouse code, or empty to use the default for the product"`
	Priority      int     `json:"priority" jsonschema_description:"Order priority 1-10, 0 if the request does not imply one"`
	Notes         string  `json:"notes" jsonschema_description:"Free-text notes carried onto the order, e.g. requested dates"`
	Confidence    float64 `json:"confidence" jsonschema_description:"Confidence in the interpretation, 0.0-1.0"`
	Reasoning     string  `json:"reasoning" jsonschema_description:"Short explanation of the interpretation"`
}

// Response is the assistant's answer: either a proposal or a request for
// clarification when the input is ambiguous or names no known product.
type Response struct {
	IsClarificationRequest bool               `json:"is_clarification_request"`
	ClarificationMessage   string             `json:"clarification_message"`
	Proposal               ProductionProposal `json:"proposal"`
}

type AgentService interface {
	InterpretPlanningRequest(ctx context.Context, text, productCatalog, warehouseList string) (*Response, error)
}

type Agent struct {
	client *openai.Client
}

func NewAgent(apiKey string) *Agent {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Agent{client: &client}
}

// InterpretPlanningRequest turns a free-text production request into a
// structured proposal validated against the provided catalog, or a
// clarification request when the text is ambiguous.
func (a *Agent) InterpretPlanningRequest(ctx context.Context, text, productCatalog, warehouseList string) (*Response, error) {
	prompt := fmt.Sprintf(`You are a production planning assistant for a manufacturing MRP system.
Your goal is to interpret a production request described in natural language and propose a structured production order.
Rules:
1. Use ONLY product codes from the catalog below. If no catalog product matches, ask for clarification.
2. Quantity must be an exact positive decimal string (e.g. "50", "12.5").
3. Priority runs 1 (lowest) to 10 (most urgent). Use 0 when the request implies none.
4. Use ONLY warehouse codes from the list below, or leave the warehouse empty for the default.
5. If the request is ambiguous (no quantity, unclear product), set is_clarification_request and explain what is missing.
6. Provide a confidence score (0.0-1.0) and explain your reasoning.

Product catalog:
%s

Warehouses:
%s

Request: %s`, productCatalog, warehouseList, text)

	schemaStruct := generateSchema()
	schemaJSON, err := json.Marshal(schemaStruct)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(shared.ChatModelGPT4o),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "production_request_proposal",
					Strict:      param.NewOpt(true),
					Schema:      schemaMap,
					Description: param.NewOpt("A structured production order proposal or a clarification request"),
				},
			},
		},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai responses error: %w", err)
	}

	content := resp.OutputText()
	if content == "" {
		return nil, fmt.Errorf("empty response content")
	}

	var response Response
	if err := json.Unmarshal([]byte(content), &response); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}

	if !response.IsClarificationRequest {
		if err := response.Proposal.Validate(); err != nil {
			return nil, fmt.Errorf("proposal validation failed: %w", err)
		}
	}

	return &response, nil
}

// Validate checks the structural rules of a proposal. Product and warehouse
// existence is checked downstream by the order creation path.
func (p *ProductionProposal) Validate() error {
	if p.ProductCode == "" {
		return fmt.Errorf("proposal has no product code")
	}
	qty, err := decimal.NewFromString(p.Quantity)
	if err != nil {
		return fmt.Errorf("proposal quantity %q is not a decimal: %w", p.Quantity, err)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("proposal quantity must be positive, got %s", qty)
	}
	if p.Priority < 0 || p.Priority > 10 {
		return fmt.Errorf("proposal priority %d out of range", p.Priority)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("proposal confidence %v out of range", p.Confidence)
	}
	return nil
}

func generateSchema() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v Response
	return reflector.Reflect(v)
}
