package transfer

import "strings"

// Header is the fixed first row of every rendered table. The second column
// is intentionally left empty.
const Header = "Saat\t\tUçuş\tYolcu"

// BOM is prepended when the output is meant for spreadsheet import.
const BOM = "\ufeff"

var cellReplacer = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ", "\r", " ")

func cell(s string) string {
	s = strings.TrimSpace(cellReplacer.Replace(s))
	if s == "" {
		return Unknown
	}
	return s
}

// Render formats records as header plus one row per record, joined with
// "\n" and without a trailing newline.
func Render(records []Record, includeBOM bool) string {
	var b strings.Builder
	if includeBOM {
		b.WriteString(BOM)
	}
	b.WriteString(Header)
	for _, r := range records {
		passengers := Unknown
		if len(r.Passengers) > 0 {
			parts := make([]string, len(r.Passengers))
			for i, p := range r.Passengers {
				parts[i] = cell(p)
			}
			passengers = strings.Join(parts, ", ")
		}
		b.WriteByte('\n')
		b.WriteString(cell(r.Time))
		b.WriteString("\t\t")
		b.WriteString(cell(r.Flight))
		b.WriteByte('\t')
		b.WriteString(passengers)
	}
	return b.String()
}

