package docs

import (
	"fmt"
	"strings"
)

func docxParagraph(text string, bold bool) string {
	props := ""
	if bold {
		props = `<w:rPr><w:b/></w:rPr>`
	}
	return fmt.Sprintf(`<w:p><w:r>%s<w:t xml:space="preserve">%s</w:t></w:r></w:p>`, props, esc(text))
}

func docxTable(header []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(`<w:tbl><w:tblPr><w:tblBorders>` +
		`<w:top w:val="single"/><w:bottom w:val="single"/><w:left w:val="single"/><w:right w:val="single"/>` +
		`<w:insideH w:val="single"/><w:insideV w:val="single"/>` +
		`</w:tblBorders></w:tblPr>`)
	writeRow := func(cells []string, bold bool) {
		b.WriteString(`<w:tr>`)
		for _, c := range cells {
			b.WriteString(`<w:tc>` + docxParagraph(c, bold) + `</w:tc>`)
		}
		b.WriteString(`</w:tr>`)
	}
	writeRow(header, true)
	for _, r := range rows {
		writeRow(r, false)
	}
	b.WriteString(`</w:tbl>`)
	return b.String()
}

func docxPackage(body string) ([]byte, error) {
	document := xmlHeader +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	return zipParts([]part{
		{"[Content_Types].xml", xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`</Types>`},
		{"_rels/.rels", xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`</Relationships>`},
		{"word/document.xml", document},
	})
}

// QuoteDOCX renders a quotation document.
func QuoteDOCX(p QuotePayload) ([]byte, error) {
	title := p.Title
	if title == "" {
		title = "Quotation"
	}
	var b strings.Builder
	b.WriteString(docxParagraph(title, true))
	b.WriteString(docxParagraph("Seller: "+p.Seller, false))
	b.WriteString(docxParagraph("Buyer: "+p.Buyer, false))
	b.WriteString(docxParagraph("Currency: "+p.Currency, false))

	var rows [][]string
	for _, it := range p.Items {
		rows = append(rows, []string{
			it.Name, it.Unit, money(it.Quantity), money(it.UnitPrice),
			money(it.Quantity * it.UnitPrice), it.Remark,
		})
	}
	b.WriteString(docxTable([]string{"Item", "Unit", "Quantity", "Unit Price", "Amount", "Remark"}, rows))
	b.WriteString(docxParagraph("Total: "+money(p.Total())+" "+p.Currency, true))
	return docxPackage(b.String())
}

// InspectionDOCX renders an inspection report document.
func InspectionDOCX(p InspectionPayload) ([]byte, error) {
	var b strings.Builder
	b.WriteString(docxParagraph("Inspection Report: "+p.Project, true))
	if p.Inspector != "" {
		b.WriteString(docxParagraph("Inspector: "+p.Inspector, false))
	}
	if p.Date != "" {
		b.WriteString(docxParagraph("Date: "+p.Date, false))
	}
	var rows [][]string
	for _, it := range p.Items {
		rows = append(rows, []string{it.Category, it.Item, it.Result, it.Note})
	}
	b.WriteString(docxTable([]string{"Category", "Item", "Result", "Note"}, rows))
	return docxPackage(b.String())
}
