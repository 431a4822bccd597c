package docs

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
)

func readZipPart(t *testing.T, data []byte, name string) string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("not a zip: %v", err)
	}
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatal(err)
			}
			defer rc.Close()
			body, _ := io.ReadAll(rc)
			return string(body)
		}
	}
	t.Fatalf("part %s not found", name)
	return ""
}

func TestQuoteXLSX(t *testing.T) {
	data, err := QuoteXLSX(QuotePayload{
		Seller:   "Acme Ltd",
		Buyer:    "Widget & Co",
		Currency: "CNY",
		Items: []QuoteItem{
			{Name: "x", Quantity: 2, UnitPrice: 10},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	sheet := readZipPart(t, data, "xl/worksheets/sheet1.xml")
	if !strings.Contains(sheet, "Acme Ltd") {
		t.Error("seller missing from sheet")
	}
	if !strings.Contains(sheet, "Widget &amp; Co") {
		t.Error("buyer not XML-escaped")
	}
	// 2 × 10 = 20.00 appears as the amount and the total.
	if !strings.Contains(sheet, "<v>20.00</v>") {
		t.Error("amount missing")
	}
}

func TestQuoteDOCX(t *testing.T) {
	data, err := QuoteDOCX(QuotePayload{
		Seller: "s", Buyer: "b", Currency: "USD",
		Items: []QuoteItem{{Name: "widget", Quantity: 1, UnitPrice: 5.5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	doc := readZipPart(t, data, "word/document.xml")
	if !strings.Contains(doc, "widget") || !strings.Contains(doc, "Total: 5.50 USD") {
		t.Errorf("document body incomplete")
	}
}

func TestDeck(t *testing.T) {
	data, err := Deck(DeckPayload{
		Title: "Alpha",
		Slides: []Slide{
			{Title: "Overview", Bullets: []string{"one", "two"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	// Title slide plus one content slide.
	first := readZipPart(t, data, "ppt/slides/slide1.xml")
	if !strings.Contains(first, "Alpha") {
		t.Error("title slide missing deck title")
	}
	second := readZipPart(t, data, "ppt/slides/slide2.xml")
	if !strings.Contains(second, "Overview") || !strings.Contains(second, "two") {
		t.Error("content slide incomplete")
	}
	ct := readZipPart(t, data, "[Content_Types].xml")
	if !strings.Contains(ct, "slide2.xml") {
		t.Error("content types missing slide2")
	}
}

func TestPrototype(t *testing.T) {
	html := string(Prototype(PrototypePayload{
		ProjectName: "Shop <v2>",
		Pages: []PrototypePage{
			{Name: "Home", Description: "landing", Sections: []string{"hero"}},
			{Name: "Cart"},
		},
	}))
	if !strings.Contains(html, "Shop &lt;v2&gt;") {
		t.Error("project name not escaped")
	}
	if !strings.Contains(html, `href="#page-1"`) {
		t.Error("nav links missing")
	}
	if !strings.Contains(html, "landing") {
		t.Error("page description missing")
	}
}

func TestColName(t *testing.T) {
	for i, want := range map[int]string{0: "A", 25: "Z", 26: "AA", 27: "AB", 51: "AZ", 52: "BA"} {
		if got := colName(i); got != want {
			t.Errorf("colName(%d) = %q, want %q", i, got, want)
		}
	}
}
