package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

func browserStartTool() *Tool {
	return &Tool{
		Name:        "browser_start",
		Description: "Start a headless browser for this session.",
		Risk:        RiskBrowser,
		Timeout:     30 * time.Second,
		Schema:      json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(ctx context.Context, tc *Context, _ json.RawMessage) (*Result, error) {
			if err := tc.Browser.Start(ctx, tc.SessionID); err != nil {
				return nil, err
			}
			return &Result{ForLLM: "browser started"}, nil
		},
	}
}

func browserNavigateTool() *Tool {
	return &Tool{
		Name:        "browser_navigate",
		Description: "Navigate the session browser to a URL.",
		Risk:        RiskBrowser,
		Timeout:     60 * time.Second,
		Schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url": {"type": "string", "minLength": 1}
			},
			"required": ["url"]
		}`),
		Handler: func(ctx context.Context, tc *Context, args json.RawMessage) (*Result, error) {
			var in struct {
				URL string `json:"url"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			if err := tc.Browser.Navigate(ctx, tc.SessionID, in.URL); err != nil {
				return nil, err
			}
			return &Result{ForLLM: "navigated to " + in.URL}, nil
		},
	}
}

func browserScreenshotTool() *Tool {
	return &Tool{
		Name:        "browser_screenshot",
		Description: "Capture the current page as a PNG artifact.",
		Risk:        RiskBrowser,
		Timeout:     30 * time.Second,
		Schema:      json.RawMessage(`{"type": "object", "properties": {}}`),
		Handler: func(ctx context.Context, tc *Context, _ json.RawMessage) (*Result, error) {
			png, err := tc.Browser.Screenshot(ctx, tc.SessionID)
			if err != nil {
				return nil, err
			}
			rec, err := tc.Artifacts.Register(ctx, store.FileRecord{
				Kind:        store.FileKindGenerated,
				Filename:    fmt.Sprintf("screenshot-%d.png", time.Now().Unix()),
				ContentType: "image/png",
				TeamID:      tc.TeamID,
				ProjectID:   tc.ProjectID,
				SessionID:   tc.SessionID,
			}, bytes.NewReader(png))
			if err != nil {
				return nil, err
			}
			return &Result{
				ForLLM:    fmt.Sprintf("screenshot saved: %s", tc.DownloadURL(rec.FileID)),
				Artifacts: []store.FileRecord{*rec},
			}, nil
		},
	}
}
