package circulars

// Listing is the parsed circular index table.
type Listing struct {
	Title   string   `json:"title"`
	Headers []string `json:"headers"`
	Rows    []Row    `json:"rows"`
}

// Row is one circular in the index. Fields keeps every column by its header.
type Row struct {
	Link           string            `json:"link,omitempty"`
	CircularNumber string            `json:"circular_number"`
	Date           string            `json:"date"`
	Department     string            `json:"department"`
	Title          string            `json:"title"`
	MeantFor       string            `json:"meant_for"`
	Fields         map[string]string `json:"fields"`
}

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Details is what a circular page yields.
type Details struct {
	Title           string    `json:"title"`
	CircularNumber  string    `json:"circular_number"`
	ReferenceNumber string    `json:"reference_number"`
	Date            string    `json:"date"`
	MeantFor        string    `json:"meant_for"`
	PDFLink         string    `json:"pdf_link,omitempty"`
	Sections        []Section `json:"sections"`
	Markdown        string    `json:"markdown"`
}
