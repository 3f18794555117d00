package extract

import "strings"

// Columns holds the detected column indexes of a contact sheet. An
// index of -1 means the column is absent.
type Columns struct {
	Name    int
	Phone   int
	Country int
}

var (
	nameKeywords    = []string{"name", "fullname", "full name", "clientname"}
	phoneKeywords   = []string{"phone", "mobile", "number", "telephone"}
	countryKeywords = []string{"country"}
)

// DetectColumns locates the phone, name and country columns by header
// keywords. Matching is case-insensitive substring matching and the
// leftmost matching header wins. When no name header matches, the first
// non-phone, non-country column whose sampled values look like text is
// used instead.
func DetectColumns(headers []string, rows [][]string, sampleRows int) Columns {
	cols := Columns{Name: -1, Phone: -1, Country: -1}

	cols.Phone = matchHeader(headers, phoneKeywords)
	cols.Country = matchHeader(headers, countryKeywords, cols.Phone)
	cols.Name = matchHeader(headers, nameKeywords, cols.Phone, cols.Country)

	if cols.Name == -1 {
		cols.Name = textColumnFallback(headers, rows, sampleRows, cols)
	}
	return cols
}

func matchHeader(headers, keywords []string, skip ...int) int {
	for i, header := range headers {
		if contains(skip, i) {
			continue
		}
		lowered := strings.ToLower(header)
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				return i
			}
		}
	}
	return -1
}

// textColumnFallback picks the first column whose sampled non-empty
// values contain something other than digits and phone punctuation.
func textColumnFallback(headers []string, rows [][]string, sampleRows int, cols Columns) int {
	if sampleRows <= 0 {
		sampleRows = 5
	}
	if sampleRows > len(rows) {
		sampleRows = len(rows)
	}

	for i := range headers {
		if i == cols.Phone || i == cols.Country {
			continue
		}
		seen := 0
		textual := true
		for _, row := range rows[:sampleRows] {
			cell := row[i]
			if cell == "" {
				continue
			}
			seen++
			if looksNumeric(cell) {
				textual = false
				break
			}
		}
		if seen > 0 && textual {
			return i
		}
	}
	return -1
}

func contains(indexes []int, i int) bool {
	for _, idx := range indexes {
		if idx == i {
			return true
		}
	}
	return false
}

func looksNumeric(cell string) bool {
	digits := 0
	for _, r := range cell {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == '-' || r == '(' || r == ')' || r == '.' || r == ' ':
		default:
			return false
		}
	}
	return digits > 0
}
