package docs

import (
	"fmt"
	"strings"
)

// xlsxRow renders one worksheet row of inline-string / numeric cells.
type xlsxCell struct {
	text string
	num  string // set instead of text for numeric cells
}

func str(s string) xlsxCell  { return xlsxCell{text: s} }
func numf(v float64) xlsxCell { return xlsxCell{num: money(v)} }

func xlsxSheet(rows [][]xlsxCell) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"><sheetData>`)
	for i, row := range rows {
		fmt.Fprintf(&b, `<row r="%d">`, i+1)
		for j, cell := range row {
			ref := fmt.Sprintf("%s%d", colName(j), i+1)
			if cell.num != "" {
				fmt.Fprintf(&b, `<c r="%s"><v>%s</v></c>`, ref, cell.num)
			} else {
				fmt.Fprintf(&b, `<c r="%s" t="inlineStr"><is><t xml:space="preserve">%s</t></is></c>`, ref, esc(cell.text))
			}
		}
		b.WriteString(`</row>`)
	}
	b.WriteString(`</sheetData></worksheet>`)
	return b.String()
}

func colName(i int) string {
	name := ""
	for i >= 0 {
		name = string(rune('A'+i%26)) + name
		i = i/26 - 1
	}
	return name
}

func xlsxPackage(sheet string) ([]byte, error) {
	return zipParts([]part{
		{"[Content_Types].xml", xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>` +
			`<Override PartName="/xl/worksheets/sheet1.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml"/>` +
			`</Types>`},
		{"_rels/.rels", xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>` +
			`</Relationships>`},
		{"xl/workbook.xml", xmlHeader + `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">` +
			`<sheets><sheet name="Sheet1" sheetId="1" r:id="rId1"/></sheets></workbook>`},
		{"xl/_rels/workbook.xml.rels", xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet1.xml"/>` +
			`</Relationships>`},
		{"xl/worksheets/sheet1.xml", sheet},
	})
}

// QuoteXLSX renders a quotation spreadsheet.
func QuoteXLSX(p QuotePayload) ([]byte, error) {
	title := p.Title
	if title == "" {
		title = "Quotation"
	}
	rows := [][]xlsxCell{
		{str(title)},
		{str("Seller"), str(p.Seller)},
		{str("Buyer"), str(p.Buyer)},
		{str("Currency"), str(p.Currency)},
		{},
		{str("Item"), str("Unit"), str("Quantity"), str("Unit Price"), str("Amount"), str("Remark")},
	}
	for _, it := range p.Items {
		rows = append(rows, []xlsxCell{
			str(it.Name), str(it.Unit), numf(it.Quantity), numf(it.UnitPrice),
			numf(it.Quantity * it.UnitPrice), str(it.Remark),
		})
	}
	rows = append(rows, []xlsxCell{str("Total"), str(""), str(""), str(""), numf(p.Total())})
	return xlsxPackage(xlsxSheet(rows))
}

// InspectionXLSX renders an inspection report spreadsheet.
func InspectionXLSX(p InspectionPayload) ([]byte, error) {
	rows := [][]xlsxCell{
		{str("Inspection Report: " + p.Project)},
		{str("Inspector"), str(p.Inspector)},
		{str("Date"), str(p.Date)},
		{},
		{str("Category"), str("Item"), str("Result"), str("Note")},
	}
	for _, it := range p.Items {
		rows = append(rows, []xlsxCell{str(it.Category), str(it.Item), str(it.Result), str(it.Note)})
	}
	return xlsxPackage(xlsxSheet(rows))
}
