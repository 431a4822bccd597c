package docs

import (
	"fmt"
	"strings"
)

// PrototypePage is one page of a clickable HTML prototype.
type PrototypePage struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sections    []string `json:"sections,omitempty"`
}

// PrototypePayload drives the prototype bundler.
type PrototypePayload struct {
	ProjectName string          `json:"project_name"`
	Pages       []PrototypePage `json:"pages"`
}

// Prototype renders a self-contained HTML bundle: every page is a tab in a
// single file so the preview URL works without unpacking.
func Prototype(p PrototypePayload) []byte {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s — prototype</title>\n", esc(p.ProjectName))
	b.WriteString(`<style>
body{font-family:system-ui,sans-serif;margin:0;background:#f5f6f8}
nav{display:flex;gap:4px;padding:12px;background:#1f2937}
nav a{color:#e5e7eb;text-decoration:none;padding:6px 14px;border-radius:6px}
nav a:hover{background:#374151}
.page{display:none;padding:32px;max-width:960px;margin:0 auto}
.page:target{display:block}
.page:first-of-type{display:block}
.page:target~.page:first-of-type{display:none}
section{background:#fff;border:1px solid #e5e7eb;border-radius:8px;padding:20px;margin:12px 0}
h1{color:#111827}
p.desc{color:#6b7280}
</style>
</head>
<body>
<nav>
`)
	for i, page := range p.Pages {
		fmt.Fprintf(&b, "<a href=\"#page-%d\">%s</a>\n", i, esc(page.Name))
	}
	b.WriteString("</nav>\n")
	for i, page := range p.Pages {
		fmt.Fprintf(&b, "<div class=\"page\" id=\"page-%d\">\n<h1>%s</h1>\n", i, esc(page.Name))
		if page.Description != "" {
			fmt.Fprintf(&b, "<p class=\"desc\">%s</p>\n", esc(page.Description))
		}
		for _, s := range page.Sections {
			fmt.Fprintf(&b, "<section>%s</section>\n", esc(s))
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return []byte(b.String())
}
