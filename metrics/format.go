package metrics

import (
	"strconv"
	"strings"
)

// FormatMatrix renders the matrix the way numpy prints an integer array:
// right aligned cells, rows wrapped in brackets, continuation rows indented by one space.
func FormatMatrix(m *ConfusionMatrix) string {
	rows := m.Rows()
	if len(rows) == 0 {
		return "[]"
	}

	width := 1
	for _, row := range rows {
		for _, v := range row {
			if n := len(strconv.Itoa(v)); n > width {
				width = n
			}
		}
	}

	var b strings.Builder
	b.WriteByte('[')
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n ")
		}
		b.WriteByte('[')
		for j, v := range row {
			if j > 0 {
				b.WriteByte(' ')
			}
			s := strconv.Itoa(v)
			b.WriteString(strings.Repeat(" ", width-len(s)))
			b.WriteString(s)
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}
