package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/docs"
	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

const quoteSchema = `{
	"type": "object",
	"properties": {
		"title": {"type": "string"},
		"seller": {"type": "string"},
		"buyer": {"type": "string"},
		"currency": {"type": "string"},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"quantity": {"type": "number"},
					"unit_price": {"type": "number"},
					"unit": {"type": "string"},
					"remark": {"type": "string"}
				},
				"required": ["name", "quantity", "unit_price"]
			}
		}
	},
	"required": ["seller", "buyer", "currency", "items"]
}`

const inspectionSchema = `{
	"type": "object",
	"properties": {
		"project": {"type": "string"},
		"inspector": {"type": "string"},
		"date": {"type": "string"},
		"items": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"category": {"type": "string"},
					"item": {"type": "string"},
					"result": {"type": "string"},
					"note": {"type": "string"}
				},
				"required": ["category", "item", "result"]
			}
		}
	},
	"required": ["project", "items"]
}`

// registerDoc writes rendered bytes into the artifact store and reports the
// download link to the model.
func registerDoc(ctx context.Context, tc *Context, filename, contentType string, data []byte) (*Result, error) {
	rec, err := tc.Artifacts.Register(ctx, store.FileRecord{
		Kind:        store.FileKindGenerated,
		Filename:    filename,
		ContentType: contentType,
		TeamID:      tc.TeamID,
		ProjectID:   tc.ProjectID,
		SessionID:   tc.SessionID,
	}, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &Result{
		ForLLM:    fmt.Sprintf("document created: %s (download: %s)", filename, tc.DownloadURL(rec.FileID)),
		Artifacts: []store.FileRecord{*rec},
	}, nil
}

func stamp(base, ext string) string {
	return fmt.Sprintf("%s-%d%s", base, time.Now().Unix(), ext)
}

func docPptxTool() *Tool {
	return &Tool{
		Name:        "doc_pptx_create",
		Description: "Create a PPTX slide deck from a title and slides with bullet points.",
		Risk:        RiskGenerator,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string"},
				"slides": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"title": {"type": "string"},
							"bullets": {"type": "array", "items": {"type": "string"}}
						},
						"required": ["title"]
					}
				}
			},
			"required": ["title"]
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var p docs.DeckPayload
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			data, err := docs.Deck(p)
			if err != nil {
				return nil, err
			}
			return registerDoc(ctx, tc, stamp("deck", ".pptx"),
				"application/vnd.openxmlformats-officedocument.presentationml.presentation", data)
		},
	}
}

func docQuoteDocxTool() *Tool {
	return &Tool{
		Name:        "doc_quote_docx_create",
		Description: "Create a quotation DOCX from seller, buyer, currency, and line items.",
		Risk:        RiskGenerator,
		Schema:      json.RawMessage(quoteSchema),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var p docs.QuotePayload
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			data, err := docs.QuoteDOCX(p)
			if err != nil {
				return nil, err
			}
			return registerDoc(ctx, tc, stamp("quote", ".docx"),
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document", data)
		},
	}
}

func docQuoteXlsxTool() *Tool {
	return &Tool{
		Name:        "doc_quote_xlsx_create",
		Description: "Create a quotation XLSX from seller, buyer, currency, and line items.",
		Risk:        RiskGenerator,
		Schema:      json.RawMessage(quoteSchema),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var p docs.QuotePayload
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			data, err := docs.QuoteXLSX(p)
			if err != nil {
				return nil, err
			}
			return registerDoc(ctx, tc, stamp("quote", ".xlsx"),
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
		},
	}
}

func docInspectionDocxTool() *Tool {
	return &Tool{
		Name:        "doc_inspection_docx_create",
		Description: "Create an inspection report DOCX from project info and checked items.",
		Risk:        RiskGenerator,
		Schema:      json.RawMessage(inspectionSchema),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var p docs.InspectionPayload
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			data, err := docs.InspectionDOCX(p)
			if err != nil {
				return nil, err
			}
			return registerDoc(ctx, tc, stamp("inspection", ".docx"),
				"application/vnd.openxmlformats-officedocument.wordprocessingml.document", data)
		},
	}
}

func docInspectionXlsxTool() *Tool {
	return &Tool{
		Name:        "doc_inspection_xlsx_create",
		Description: "Create an inspection report XLSX from project info and checked items.",
		Risk:        RiskGenerator,
		Schema:      json.RawMessage(inspectionSchema),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var p docs.InspectionPayload
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			data, err := docs.InspectionXLSX(p)
			if err != nil {
				return nil, err
			}
			return registerDoc(ctx, tc, stamp("inspection", ".xlsx"),
				"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
		},
	}
}

func protoGenerateTool() *Tool {
	return &Tool{
		Name:        "proto_generate",
		Description: "Generate a clickable HTML prototype bundle from named pages.",
		Risk:        RiskGenerator,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"project_name": {"type": "string", "minLength": 1},
				"pages": {
					"type": "array",
					"minItems": 1,
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string"},
							"description": {"type": "string"},
							"sections": {"type": "array", "items": {"type": "string"}}
						},
						"required": ["name"]
					}
				}
			},
			"required": ["project_name", "pages"]
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var p docs.PrototypePayload
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, err
			}
			res, err := registerDoc(ctx, tc, stamp("prototype", ".html"), "text/html; charset=utf-8", docs.Prototype(p))
			if err != nil {
				return nil, err
			}
			res.ForLLM = fmt.Sprintf("prototype generated for %q: preview at %s",
				p.ProjectName, tc.DownloadURL(res.Artifacts[0].FileID))
			return res, nil
		},
	}
}
