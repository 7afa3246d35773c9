package nodeid

import (
	"strconv"
	"strings"
)

// String serializes the address into its canonical form.
func (a *Address) String() string {
	if a == nil {
		return ""
	}

	var sb strings.Builder
	for i, segment := range a.Path {
		if i > 0 {
			sb.WriteRune('.')
		}
		sb.WriteString(segment.Name)
		if segment.HasIndex() {
			sb.WriteRune('[')
			sb.WriteString(strconv.Itoa(segment.Index))
			sb.WriteRune(']')
		}
	}
	return sb.String()
}
