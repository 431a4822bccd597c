package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/artifacts"
)

func attachmentReadTool() *Tool {
	return &Tool{
		Name:        "attachment_read",
		Description: "Read a previously uploaded or generated attachment by file ID. PDFs return extracted text, images return base64.",
		Risk:        RiskReader,
		Timeout:     30 * time.Second,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_id": {"type": "string", "minLength": 1}
			},
			"required": ["file_id"]
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var in struct {
				FileID string `json:"file_id"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			rec, r, err := tc.Artifacts.Open(ctx, tc.TeamID, in.FileID)
			if err != nil {
				return nil, err
			}
			defer r.Close()

			switch {
			case strings.Contains(rec.ContentType, "pdf") || strings.HasSuffix(in.FileID, ".pdf"):
				text, err := pdfText(tc.Artifacts, in.FileID)
				if err != nil {
					return nil, fmt.Errorf("extract pdf text: %w", err)
				}
				return &Result{ForLLM: text}, nil

			case artifacts.IsImageContentType(rec.ContentType):
				data, err := io.ReadAll(r)
				if err != nil {
					return nil, err
				}
				return &Result{ForLLM: fmt.Sprintf("data:%s;base64,%s",
					rec.ContentType, base64.StdEncoding.EncodeToString(data))}, nil

			default:
				data, err := io.ReadAll(io.LimitReader(r, int64(tc.MaxFileReadChars)+1))
				if err != nil {
					return nil, err
				}
				return &Result{ForLLM: Truncate(string(data), tc.MaxFileReadChars)}, nil
			}
		},
	}
}

func pdfText(store *artifacts.Store, fileID string) (string, error) {
	f, r, err := pdf.Open(store.Path(fileID))
	if err != nil {
		return "", err
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
