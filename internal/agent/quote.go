package agent

import (
	"strconv"
	"strings"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/docs"
)

var quoteKeywords = []string{"报价", "quotation", "quote"}

// ParseQuoteFastPath recognizes plain quote requests whose line items are
// already machine-parseable, so the turn can call the XLSX generator
// directly without a model round trip. A line item is "name, qty, price"
// (comma or whitespace separated, the last two fields numeric). Anything
// ambiguous returns false and the normal loop runs.
func ParseQuoteFastPath(message string) (*docs.QuotePayload, bool) {
	lower := strings.ToLower(message)
	keyword := false
	for _, k := range quoteKeywords {
		if strings.Contains(lower, k) {
			keyword = true
			break
		}
	}
	if !keyword {
		return nil, false
	}

	var items []docs.QuoteItem
	for _, line := range strings.Split(message, "\n") {
		if it, ok := parseQuoteLine(line); ok {
			items = append(items, it)
		}
	}
	if len(items) == 0 {
		return nil, false
	}
	return &docs.QuotePayload{
		Title:    "Quotation",
		Currency: "CNY",
		Items:    items,
	}, true
}

func parseQuoteLine(line string) (docs.QuoteItem, bool) {
	line = strings.TrimSpace(line)
	line = strings.ReplaceAll(line, "，", ",")

	var fields []string
	if strings.Contains(line, ",") {
		for _, f := range strings.Split(line, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	} else {
		fields = strings.Fields(line)
	}
	if len(fields) < 3 {
		return docs.QuoteItem{}, false
	}

	price, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil || price < 0 {
		return docs.QuoteItem{}, false
	}
	qty, err := strconv.ParseFloat(fields[len(fields)-2], 64)
	if err != nil || qty <= 0 {
		return docs.QuoteItem{}, false
	}
	name := strings.Join(fields[:len(fields)-2], " ")
	if name == "" {
		return docs.QuoteItem{}, false
	}
	// A purely numeric "name" is a misparse, not an item.
	if _, err := strconv.ParseFloat(name, 64); err == nil {
		return docs.QuoteItem{}, false
	}
	return docs.QuoteItem{Name: name, Quantity: qty, UnitPrice: price}, true
}
