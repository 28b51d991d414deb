package audit

import (
	"encoding/csv"
	"io"
)

// WriteCSV serialises the findings of a report.
func WriteCSV(w io.Writer, report Report) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Date", "Severity", "Kind", "Member", "Card", "Detail"}); err != nil {
		return err
	}
	for _, f := range report.Findings {
		if err := writer.Write([]string{f.Date.String(), f.Severity, f.Kind, f.Member, f.RoleID, f.Detail}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
