package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tbxark/remi/types"
)

// FormatResults renders candidates as the numbered list shown in chat, ranks
// starting at 1.
func FormatResults(candidates []types.Candidate) string {
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. **%s** (%s⭐)", i+1, c.Name, strconv.FormatFloat(c.Rating, 'f', -1, 64))
		if c.DisplayAddress != "" {
			sb.WriteString(" in ")
			sb.WriteString(c.DisplayAddress)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
