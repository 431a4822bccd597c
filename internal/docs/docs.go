// Package docs renders office documents (quote sheets, inspection reports,
// slide decks) and prototype HTML bundles as artifact bytes. The OOXML
// writers emit the minimal valid part set by hand; payload structure, not
// layout fidelity, is the contract.
package docs

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// QuoteItem is one line of a quotation.
type QuoteItem struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Unit      string  `json:"unit,omitempty"`
	Remark    string  `json:"remark,omitempty"`
}

// QuotePayload drives both the DOCX and XLSX quote renderers.
type QuotePayload struct {
	Title    string      `json:"title,omitempty"`
	Seller   string      `json:"seller"`
	Buyer    string      `json:"buyer"`
	Currency string      `json:"currency"`
	Items    []QuoteItem `json:"items"`
}

// Total sums quantity × unit price across items.
func (q QuotePayload) Total() float64 {
	var total float64
	for _, it := range q.Items {
		total += it.Quantity * it.UnitPrice
	}
	return total
}

// Slide is one slide of a deck.
type Slide struct {
	Title   string   `json:"title"`
	Bullets []string `json:"bullets,omitempty"`
}

// DeckPayload drives the PPTX renderer.
type DeckPayload struct {
	Title  string  `json:"title"`
	Slides []Slide `json:"slides"`
}

// InspectionItem is one row of an inspection report.
type InspectionItem struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Result   string `json:"result"`
	Note     string `json:"note,omitempty"`
}

// InspectionPayload drives the inspection DOCX/XLSX renderers.
type InspectionPayload struct {
	Project   string           `json:"project"`
	Inspector string           `json:"inspector,omitempty"`
	Date      string           `json:"date,omitempty"`
	Items     []InspectionItem `json:"items"`
}

// esc XML-escapes text content.
func esc(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// zipParts assembles an OOXML package from part name → content.
func zipParts(parts []part) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, p := range parts {
		f, err := w.Create(p.name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write([]byte(p.body)); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type part struct {
	name string
	body string
}

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
