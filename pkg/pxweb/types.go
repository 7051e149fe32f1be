package pxweb

import "fmt"

// ContentsCode is the code of the content dimension: the variable whose
// values are the measured fields of a table. Every other variable is a key
// dimension.
const ContentsCode = "ContentsCode"

// Variable describes one dimension of a table.
type Variable struct {
	Code       string   `json:"code"`
	Text       string   `json:"text"`
	Values     []string `json:"values"`
	ValueTexts []string `json:"valueTexts"`
	Time       bool     `json:"time,omitempty"`
}

// Lookup returns the raw-code → display-text mapping for the variable.
func (v *Variable) Lookup() map[string]string {
	m := make(map[string]string, len(v.Values))
	for i, value := range v.Values {
		if i < len(v.ValueTexts) {
			m[value] = v.ValueTexts[i]
		}
	}
	return m
}

// TableInfo is the metadata document describing a table's dimensions.
type TableInfo struct {
	Title     string     `json:"title"`
	Variables []Variable `json:"variables"`
}

// ContentVariable returns the content dimension. A table must have exactly
// one; anything else is inconsistent metadata.
func (t *TableInfo) ContentVariable() (*Variable, error) {
	var found *Variable
	for i := range t.Variables {
		if t.Variables[i].Code == ContentsCode {
			if found != nil {
				return nil, fmt.Errorf("table %q has more than one content dimension", t.Title)
			}
			found = &t.Variables[i]
		}
	}
	if found == nil {
		return nil, fmt.Errorf("table %q has no content dimension", t.Title)
	}
	return found, nil
}

// KeyVariables returns the non-content dimensions in metadata order.
func (t *TableInfo) KeyVariables() []Variable {
	keys := make([]Variable, 0, len(t.Variables))
	for _, v := range t.Variables {
		if v.Code != ContentsCode {
			keys = append(keys, v)
		}
	}
	return keys
}

// Variable returns the variable with the given code, or nil.
func (t *TableInfo) Variable(code string) *Variable {
	for i := range t.Variables {
		if t.Variables[i].Code == code {
			return &t.Variables[i]
		}
	}
	return nil
}

// Filter kinds accepted by the query API.
const (
	FilterItem = "item" // one pinned value
	FilterAll  = "all"  // wildcard
)

// Selection is the per-dimension filter of a query.
type Selection struct {
	Filter string   `json:"filter"`
	Values []string `json:"values"`
}

// QueryEntry pairs a dimension code with its selection.
type QueryEntry struct {
	Code      string    `json:"code"`
	Selection Selection `json:"selection"`
}

// ResponseFormat fixes the response encoding of a data query.
type ResponseFormat struct {
	Format string `json:"format"`
}

// Query is the body of a table-data request.
type Query struct {
	Query    []QueryEntry   `json:"query"`
	Response ResponseFormat `json:"response"`
}

// BuildQuery assembles the data query for one pin assignment: pinned
// dimensions become item filters with their single value, every other key
// dimension becomes a wildcard. The content dimension carries no filter;
// the API returns all content fields for it.
func BuildQuery(info *TableInfo, pinned map[string]string) Query {
	q := Query{Response: ResponseFormat{Format: "json"}}
	for _, v := range info.Variables {
		if value, ok := pinned[v.Code]; ok {
			q.Query = append(q.Query, QueryEntry{
				Code:      v.Code,
				Selection: Selection{Filter: FilterItem, Values: []string{value}},
			})
		}
	}
	for _, v := range info.Variables {
		if _, ok := pinned[v.Code]; !ok && v.Code != ContentsCode {
			q.Query = append(q.Query, QueryEntry{
				Code:      v.Code,
				Selection: Selection{Filter: FilterAll, Values: []string{"*"}},
			})
		}
	}
	return q
}

// Column types in a data response.
const (
	ColumnContent = "c" // measured field
	ColumnTime    = "t" // time dimension
)

// Column describes one column of a data response.
type Column struct {
	Code string `json:"code"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// Row is one data row: raw key values in column order, then raw content
// values in content-column order.
type Row struct {
	Key    []string `json:"key"`
	Values []string `json:"values"`
}

// DataResponse is the structured JSON body of a table-data response.
type DataResponse struct {
	Columns []Column `json:"columns"`
	Data    []Row    `json:"data"`
}

// Node is one entry of a navigation listing: a sub-level or a table.
type Node struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}
