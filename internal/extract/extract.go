// Package extract turns parsed spreadsheet tables into clean contact
// lists: it finds the relevant columns, normalizes every phone number
// and drops duplicates while preserving row order.
package extract

import (
	"errors"

	"github.com/emeka/bulksms-back/internal/domain"
	"github.com/emeka/bulksms-back/internal/phone"
	"github.com/emeka/bulksms-back/internal/spreadsheet"
)

// ErrNoPhoneColumn reports a sheet that parsed fine but has no column
// that could hold phone numbers.
var ErrNoPhoneColumn = errors.New("no phone column detected")

// Options configures an Extractor.
type Options struct {
	// DefaultProfile is the dialing profile applied when a row has no
	// usable country hint.
	DefaultProfile phone.Profile
	// SampleRows caps how many data rows the name-column fallback
	// inspects. Zero means a small default.
	SampleRows int
}

// Extractor builds contact lists out of tables.
type Extractor struct {
	profile    phone.Profile
	sampleRows int
}

func New(opts Options) *Extractor {
	return &Extractor{
		profile:    opts.DefaultProfile,
		sampleRows: opts.SampleRows,
	}
}

// Extract returns the unique, normalized contacts of the table in row
// order. Rows whose phone cell is empty or carries no digits are
// skipped; for duplicate numbers the first row wins.
func (e *Extractor) Extract(table *spreadsheet.Table) ([]domain.Contact, error) {
	cols := DetectColumns(table.Headers, table.Rows, e.sampleRows)
	if cols.Phone == -1 {
		return nil, ErrNoPhoneColumn
	}

	seen := make(map[string]struct{}, len(table.Rows))
	contacts := make([]domain.Contact, 0, len(table.Rows))
	for _, row := range table.Rows {
		profile := e.profile
		if cols.Country != -1 {
			profile = phone.ForCountry(row[cols.Country], e.profile)
		}
		normalized, ok := profile.Normalize(row[cols.Phone])
		if !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}

		fullname := ""
		if cols.Name != -1 {
			fullname = row[cols.Name]
		}
		contacts = append(contacts, domain.Contact{Fullname: fullname, Phone: normalized})
	}
	return contacts, nil
}
