package utils

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// answers maps the accepted confirmation replies to their meaning.
var answers = map[string]bool{
	"y":   true,
	"yes": true,
	"n":   false,
	"no":  false,
}

// PromptYesNoWithReader writes prompt and reads replies from reader until one
// is understood. Running out of input declines.
func PromptYesNoWithReader(prompt string, reader io.Reader, writer io.Writer) bool {
	lines := bufio.NewScanner(reader)
	for {
		_, _ = fmt.Fprintf(writer, "%s (y/n): ", prompt)
		if !lines.Scan() {
			return false
		}
		if yes, ok := answers[strings.ToLower(strings.TrimSpace(lines.Text()))]; ok {
			return yes
		}
	}
}
