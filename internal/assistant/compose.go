package assistant

import (
	"fmt"
	"strings"
)

// ComposeMessage builds the text handed to the assistant. A blank transcript
// is left out, but the screenshot count is always stated.
func ComposeMessage(message, transcript string, screenshots int) string {
	var b strings.Builder
	b.WriteString(message)
	if t := strings.TrimSpace(transcript); t != "" {
		fmt.Fprintf(&b, "\n\nUser said: \"%s\"", t)
	}
	fmt.Fprintf(&b, "\n\n%d screenshots attached from the screen recording.", screenshots)
	return b.String()
}
