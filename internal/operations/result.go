package operations

// AnalysisResult is the normalized output of a succeeded operation,
// independent of which model produced it. Content is never absent: the empty
// string is the no-text representation.
type AnalysisResult struct {
	ModelID       string           `json:"modelId"`
	Content       string           `json:"content"`
	Pages         []Page           `json:"pages"`
	Tables        []Table          `json:"tables"`
	KeyValuePairs map[string]Field `json:"keyValuePairs"`
}

// Page summarizes one document page. Numbers are 1-based and strictly
// increasing within a result.
type Page struct {
	Number    int     `json:"pageNumber"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Unit      string  `json:"unit"`
	WordCount int     `json:"wordCount"`
	LineCount int     `json:"lineCount"`
}

// Table is a recognized table with its cells in reading order.
type Table struct {
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	Cells       []Cell `json:"cells"`
}

// Cell is one table cell; spans above 1 mark merged regions.
type Cell struct {
	Row        int    `json:"row"`
	Column     int    `json:"column"`
	Text       string `json:"text"`
	RowSpan    int    `json:"rowSpan"`
	ColumnSpan int    `json:"columnSpan"`
}

// Field is an extracted schema field with the remote service's confidence.
type Field struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

func (r AnalysisResult) clone() AnalysisResult {
	out := r
	if r.Pages != nil {
		out.Pages = make([]Page, len(r.Pages))
		copy(out.Pages, r.Pages)
	}
	if r.Tables != nil {
		out.Tables = make([]Table, len(r.Tables))
		for i, t := range r.Tables {
			cells := make([]Cell, len(t.Cells))
			copy(cells, t.Cells)
			t.Cells = cells
			out.Tables[i] = t
		}
	}
	if r.KeyValuePairs != nil {
		out.KeyValuePairs = make(map[string]Field, len(r.KeyValuePairs))
		for k, v := range r.KeyValuePairs {
			out.KeyValuePairs[k] = v
		}
	}
	return out
}
