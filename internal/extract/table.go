package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// parse builds a queryable document. The HTML5 parser repairs unclosed tags
// the way a browser would, so fragments and broken pages still parse.
func parse(markup string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromNode(root), nil
}

func findTable(markup, id string) *goquery.Selection {
	doc, err := parse(markup)
	if err != nil {
		return nil
	}
	table := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("id", "") == id
	}).First()
	if table.Length() == 0 {
		return nil
	}
	return table
}

// ExtractTable returns the outer markup of the table with the given id.
func ExtractTable(markup, id string) (string, bool) {
	table := findTable(markup, id)
	if table == nil {
		return "", false
	}
	outer, err := goquery.OuterHtml(table)
	if err != nil {
		return "", false
	}
	return outer, true
}

// ExtractTableRows returns the cell texts of each row of the table with the
// given id. Rows without cells are skipped; nested tables are not descended.
func ExtractTableRows(markup, id string) [][]string {
	rows := [][]string{}
	table := findTable(markup, id)
	if table == nil {
		return rows
	}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.ParentsFiltered("table").First().AttrOr("id", "") != id {
			return
		}
		var cells []string
		tr.ChildrenFiltered("td, th").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cleanText(cell.Text()))
		})
		if len(cells) > 0 {
			rows = append(rows, cells)
		}
	})
	return rows
}
