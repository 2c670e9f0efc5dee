package rallylog

import (
	"fmt"
	"os"

	"github.com/sotakeda/bounce/internal/fsutil"
)

// DefaultTemplate is the rally log skeleton materialized on first run. The
// file on disk is user-editable; instantiation is flat token substitution,
// so stray braces or markdown in an edited template can never break it.
const DefaultTemplate = `# Rally Log

- Date: {{DATE}}
- Topic: {{TOPIC}}
- Purpose: {{PURPOSE}}
- Session-ID: (pending)
- Working-Directory: {{WORKING_DIR}} <!-- absolute path of the workspace, or none -->
- Sandbox: {{SANDBOX}} <!-- read-only | workspace-write -->
- References:
{{REFERENCES}}

## Request 1

(write the question for this rally here)

## Response 1

(pending)

## Conclusion

(pending)
`

// EnsureTemplate writes the default template to path unless a file already
// exists there. It reports whether a new file was created.
func EnsureTemplate(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat template: %w", err)
	}

	if err := fsutil.AtomicWrite(path, []byte(DefaultTemplate)); err != nil {
		return false, fmt.Errorf("failed to write default template: %w", err)
	}
	return true, nil
}
