package interactive

import "regexp"

// ansiPattern matches CSI sequences (including private modes like cursor
// hide/show), OSC sequences terminated by BEL or ST, charset selections, and
// keypad mode switches. The assistant's TUI emits all of these; replies are
// returned with them removed but are otherwise untouched.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07\x1b]*(\x07|\x1b\\)|\x1b[()][0-9A-Za-z]|\x1b[=>]`)

// StripANSI removes terminal escape sequences from s.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
