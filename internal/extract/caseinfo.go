// Package extract turns portal page markup into structured results.
// Every function here is pure and tolerant of malformed markup.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CaseStatusTableSelector matches the case-status result table.
const CaseStatusTableSelector = "table.case_status_table"

// Field is one label/value pair of a CaseInfo.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CaseInfo is an ordered label -> value mapping. Setting an existing label
// replaces its value but keeps its original position.
type CaseInfo struct {
	fields []Field
	index  map[string]int
}

// NewCaseInfo builds a CaseInfo from pairs in order.
func NewCaseInfo(fields ...Field) CaseInfo {
	var c CaseInfo
	for _, f := range fields {
		c.Set(f.Label, f.Value)
	}
	return c
}

func (c *CaseInfo) Set(label, value string) {
	if c.index == nil {
		c.index = make(map[string]int)
	}
	if i, ok := c.index[label]; ok {
		c.fields[i].Value = value
		return
	}
	c.index[label] = len(c.fields)
	c.fields = append(c.fields, Field{Label: label, Value: value})
}

func (c CaseInfo) Get(label string) (string, bool) {
	i, ok := c.index[label]
	if !ok {
		return "", false
	}
	return c.fields[i].Value, true
}

func (c CaseInfo) Len() int { return len(c.fields) }

// Fields returns a copy of the pairs in first-appearance order.
func (c CaseInfo) Fields() []Field {
	return append([]Field(nil), c.fields...)
}

// MarshalJSON encodes the mapping as a JSON object keeping insertion order.
func (c CaseInfo) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range c.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object, preserving key order.
func (c *CaseInfo) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = CaseInfo{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("case info must be a JSON object")
	}
	var out CaseInfo
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out.Set(keyTok.(string), value)
	}
	*c = out
	return nil
}

// ExtractCaseInfo pairs each labelled row of the case-status table with the
// text of its second cell. A missing table yields an empty CaseInfo.
func ExtractCaseInfo(markup string) CaseInfo {
	var info CaseInfo
	doc, err := parse(markup)
	if err != nil {
		return info
	}
	table := doc.Find(CaseStatusTableSelector).First()
	if table.Length() == 0 {
		return info
	}
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		label := row.Find("label").First()
		if label.Length() == 0 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		info.Set(cleanText(label.Text()), cleanText(cells.Eq(1).Text()))
	})
	return info
}

// cleanText collapses runs of whitespace and trims the ends.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
