package types

// TextRun is one positioned line of text produced by the text extractor.
type TextRun struct {
	Text string `json:"text"`
	BBox BBox   `json:"bbox"`
}

// Table is one detected table produced by the table extractor. Rows may be
// ragged; padding happens when the table becomes a Block.
type Table struct {
	Rows [][]string `json:"rows"`
	BBox BBox       `json:"bbox"`
}

// PageText is the text extractor output for one page.
type PageText struct {
	Index  int       `json:"index"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	Runs   []TextRun `json:"runs"`
}

// PageTables is the table extractor output for one page.
type PageTables struct {
	Index  int     `json:"index"`
	Tables []Table `json:"tables"`
}
