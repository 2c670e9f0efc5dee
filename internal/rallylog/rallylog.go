// Package rallylog persists consultations as append-only markdown logs. A
// rally is one request/response exchange; the log file is the only state a
// conversation has, so resuming means re-reading the file, never a registry.
//
// Logs are written for a single writer. Nothing here locks the file;
// serializing concurrent mutations of one log is the caller's
// responsibility.
package rallylog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sotakeda/bounce/internal/checksum"
	"github.com/sotakeda/bounce/internal/fsutil"
	"github.com/sotakeda/bounce/internal/policy"
)

var (
	// ErrNotFound covers both a bad path and a log archived away between
	// validation and use.
	ErrNotFound = errors.New("rally log not found")
	// ErrMalformedHeader reports a file that does not begin with the rally
	// log header marker.
	ErrMalformedHeader = errors.New("rally log header is malformed")
	// ErrNoPendingRequest reports a log with no request section at all;
	// there is nothing for the assistant to answer.
	ErrNoPendingRequest = errors.New("rally log has no request section")
	// ErrTemplateMissing reports an absent template file.
	ErrTemplateMissing = errors.New("rally log template not found")
)

// Structural markers. The header marker identifies a file as a rally log;
// role markers carry the rally number; the conclusion marker terminates the
// exchange sections.
const (
	headerMarker     = "# Rally Log"
	conclusionMarker = "## Conclusion"
	sectionPrefix    = "## "
	placeholder      = "(pending)"
	noWorkingDir     = "none"
)

// Metadata labels in the header block.
const (
	labelDate       = "- Date:"
	labelTopic      = "- Topic:"
	labelPurpose    = "- Purpose:"
	labelSessionID  = "- Session-ID:"
	labelWorkingDir = "- Working-Directory:"
	labelSandbox    = "- Sandbox:"
)

var (
	requestMarkerPattern  = regexp.MustCompile(`(?m)^## Request (\d+)\s*$`)
	responseMarkerPattern = regexp.MustCompile(`(?m)^## Response (\d+)\s*$`)
	sessionLinePattern    = regexp.MustCompile(`(?m)^- Session-ID:.*$`)
	commentPattern        = regexp.MustCompile(`<!--.*?-->`)
)

// Store creates and mutates rally logs under Dir using the template at
// TemplatePath. Clock is swappable for tests.
type Store struct {
	Dir          string
	TemplatePath string
	Clock        func() time.Time
	Logger       *slog.Logger
}

// NewStore returns a Store using the wall clock.
func NewStore(dir, templatePath string, logger *slog.Logger) *Store {
	return &Store{
		Dir:          dir,
		TemplatePath: templatePath,
		Clock:        time.Now,
		Logger:       logger,
	}
}

// FileName derives the deterministic log filename from a timestamp and the
// topic: the local time down to seconds plus a short topic hash, which keeps
// the name valid and collision-resistant even for non-ASCII topics.
func FileName(now time.Time, topic string) string {
	return fmt.Sprintf("%s-%s.md", now.Format("20060102-150405"), checksum.ShortHex(topic, 8))
}

// Create instantiates a new rally log from the template and returns its
// path. Session id, response, and conclusion stay as placeholders; the
// request body is placeholder text for the caller to fill in.
func (s *Store) Create(topic, purpose, workingDir string, isolation policy.Isolation, refs []string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", fmt.Errorf("topic is required")
	}

	tmpl, err := os.ReadFile(s.TemplatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrTemplateMissing, s.TemplatePath)
		}
		return "", fmt.Errorf("failed to read template: %w", err)
	}

	now := s.clock()
	wd := workingDir
	if wd == "" {
		wd = noWorkingDir
	}
	if purpose == "" {
		purpose = placeholder
	}

	content := strings.NewReplacer(
		"{{DATE}}", now.Format("2006-01-02 15:04"),
		"{{TOPIC}}", topic,
		"{{PURPOSE}}", purpose,
		"{{WORKING_DIR}}", wd,
		"{{SANDBOX}}", string(isolation),
		"{{REFERENCES}}", referenceBlock(refs),
	).Replace(string(tmpl))

	path := filepath.Join(s.Dir, FileName(now, topic))
	if err := fsutil.AtomicWrite(path, []byte(content)); err != nil {
		return "", fmt.Errorf("failed to write rally log: %w", err)
	}

	s.logger().Info("rally log created", "path", path, "topic", topic, "sandbox", isolation)
	return path, nil
}

// Read returns the raw log content, mapping a missing file to ErrNotFound.
func (s *Store) Read(path string) (string, error) {
	return readLog(path)
}

// Validate is the gate every log-driven run passes before spawning the
// assistant. Checks run in order: the file exists, it begins with the
// header marker, and it contains at least one request section.
func (s *Store) Validate(path string) error {
	content, err := readLog(path)
	if err != nil {
		return err
	}
	if !hasHeader(content) {
		return fmt.Errorf("%w: %s does not begin with %q", ErrMalformedHeader, filepath.Base(path), headerMarker)
	}
	if !requestMarkerPattern.MatchString(content) {
		return fmt.Errorf("%w: %s", ErrNoPendingRequest, filepath.Base(path))
	}
	return nil
}

// CurrentRally returns the highest rally number present across both role
// markers, or 0 for a log with no exchange sections. Counting both roles
// keeps the number right even when one side of a rally was hand-deleted.
func CurrentRally(content string) int {
	max := 0
	for _, pattern := range []*regexp.Regexp{requestMarkerPattern, responseMarkerPattern} {
		for _, m := range pattern.FindAllStringSubmatch(content, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return max
}

// AppendResponse records the assistant's reply for a rally. The operation
// is idempotent: an existing response section for the rally is replaced in
// place, otherwise a new section is inserted right after the matching
// request. The session id metadata line is rewritten only when a non-empty
// id is supplied; an existing id is never cleared.
func (s *Store) AppendResponse(path, response, sessionID string, rally int) error {
	content, err := readLog(path)
	if err != nil {
		return err
	}

	updated, err := upsertResponse(content, response, rally)
	if err != nil {
		return err
	}
	if sessionID != "" {
		updated = sessionLinePattern.ReplaceAllString(updated, labelSessionID+" "+sessionID)
	}

	if err := fsutil.AtomicWrite(path, []byte(updated)); err != nil {
		return fmt.Errorf("failed to write rally log: %w", err)
	}

	s.logger().Info("response recorded", "path", path, "rally", rally, "session_id", sessionID)
	return nil
}

// InsertRequest adds a request section for a rally immediately before the
// conclusion marker, or at end of file when the marker is missing. A rally
// that already has a request section is left untouched; only the resume
// path calls this.
func (s *Store) InsertRequest(path, prompt string, rally int) error {
	content, err := readLog(path)
	if err != nil {
		return err
	}

	marker := requestMarker(rally)
	lines := strings.Split(content, "\n")
	if _, _, ok := sectionBounds(lines, marker); ok {
		s.logger().Debug("request section already present", "path", path, "rally", rally)
		return nil
	}

	block := append([]string{marker, ""}, strings.Split(strings.TrimRight(prompt, "\n"), "\n")...)
	block = append(block, "")

	idx := -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == conclusionMarker {
			idx = i
			break
		}
	}

	var out []string
	if idx >= 0 {
		out = append(out, lines[:idx]...)
		out = append(out, block...)
		out = append(out, lines[idx:]...)
	} else {
		for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
			lines = lines[:len(lines)-1]
		}
		out = append(out, lines...)
		out = append(out, "")
		out = append(out, block...)
	}

	if err := fsutil.AtomicWrite(path, []byte(strings.Join(out, "\n"))); err != nil {
		return fmt.Errorf("failed to write rally log: %w", err)
	}

	s.logger().Info("request recorded", "path", path, "rally", rally)
	return nil
}

// Meta is the metadata recovered from a log's header block.
type Meta struct {
	Date       string
	Topic      string
	Purpose    string
	SessionID  string
	WorkingDir string
	// Isolation is the raw sandbox value; callers whitelist it before use.
	Isolation string
}

// ParseMeta extracts the header metadata. Inline comment annotations are
// stripped, the working-directory sentinel and placeholders read as empty,
// and scanning stops at the first section marker so bullets inside exchange
// bodies can never shadow the header.
func ParseMeta(content string) Meta {
	var m Meta
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, sectionPrefix) {
			break
		}
		trimmed := strings.TrimSpace(commentPattern.ReplaceAllString(line, ""))
		switch {
		case strings.HasPrefix(trimmed, labelDate):
			m.Date = metaValue(trimmed, labelDate)
		case strings.HasPrefix(trimmed, labelTopic):
			m.Topic = metaValue(trimmed, labelTopic)
		case strings.HasPrefix(trimmed, labelPurpose):
			m.Purpose = metaValue(trimmed, labelPurpose)
		case strings.HasPrefix(trimmed, labelSessionID):
			m.SessionID = metaValue(trimmed, labelSessionID)
		case strings.HasPrefix(trimmed, labelWorkingDir):
			m.WorkingDir = metaValue(trimmed, labelWorkingDir)
		case strings.HasPrefix(trimmed, labelSandbox):
			m.Isolation = metaValue(trimmed, labelSandbox)
		}
	}

	if m.WorkingDir == noWorkingDir || m.WorkingDir == placeholder {
		m.WorkingDir = ""
	}
	if m.SessionID == placeholder {
		m.SessionID = ""
	}
	if m.Purpose == placeholder {
		m.Purpose = ""
	}
	return m
}

// metaValue returns the text after a header label, whitespace-trimmed.
func metaValue(line, label string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, label))
}

// Entry summarizes one log for listings.
type Entry struct {
	Path     string
	Topic    string
	Rally    int
	Modified time.Time
}

// List returns the logs under Dir, newest first. Files that do not carry
// the header marker (including the template, if it lives in the same
// directory) are skipped.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	templateName := filepath.Base(s.TemplatePath)
	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") || de.Name() == templateName {
			continue
		}
		path := filepath.Join(s.Dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := string(data)
		if !hasHeader(content) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Path:     path,
			Topic:    ParseMeta(content).Topic,
			Rally:    CurrentRally(content),
			Modified: info.ModTime(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Modified.After(entries[j].Modified)
	})
	return entries, nil
}

func (s *Store) clock() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Store) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func readLog(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("failed to read rally log: %w", err)
	}
	return string(data), nil
}

func hasHeader(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return trimmed == headerMarker
	}
	return false
}

func requestMarker(rally int) string {
	return fmt.Sprintf("## Request %d", rally)
}

func responseMarker(rally int) string {
	return fmt.Sprintf("## Response %d", rally)
}

// isSectionMarker recognizes only the structural markers. Arbitrary "## "
// headings inside a reply body do not terminate a section, so markdown in
// assistant output cannot corrupt later rewrites.
func isSectionMarker(line string) bool {
	trimmed := strings.TrimRight(line, " \t")
	return requestMarkerPattern.MatchString(trimmed) ||
		responseMarkerPattern.MatchString(trimmed) ||
		trimmed == conclusionMarker
}

// sectionBounds locates a section: start is the marker line, end is the
// index of the next structural marker (or len(lines)). The body spans
// (start, end).
func sectionBounds(lines []string, marker string) (start, end int, ok bool) {
	start = -1
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == marker {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, 0, false
	}

	end = len(lines)
	for i := start + 1; i < len(lines); i++ {
		if isSectionMarker(lines[i]) {
			end = i
			break
		}
	}
	return start, end, true
}

func upsertResponse(content, response string, rally int) (string, error) {
	lines := strings.Split(content, "\n")
	block := append([]string{""}, strings.Split(strings.TrimRight(response, "\n"), "\n")...)
	block = append(block, "")

	if start, end, ok := sectionBounds(lines, responseMarker(rally)); ok {
		out := make([]string, 0, len(lines)+len(block))
		out = append(out, lines[:start+1]...)
		out = append(out, block...)
		out = append(out, lines[end:]...)
		return strings.Join(out, "\n"), nil
	}

	_, end, ok := sectionBounds(lines, requestMarker(rally))
	if !ok {
		return "", fmt.Errorf("no request section for rally %d", rally)
	}

	out := make([]string, 0, len(lines)+len(block)+1)
	out = append(out, lines[:end]...)
	out = append(out, responseMarker(rally))
	out = append(out, block...)
	out = append(out, lines[end:]...)
	return strings.Join(out, "\n"), nil
}

func referenceBlock(refs []string) string {
	if len(refs) == 0 {
		return "  - (none)"
	}
	lines := make([]string, 0, len(refs))
	for _, ref := range refs {
		lines = append(lines, "  - "+ref)
	}
	return strings.Join(lines, "\n")
}
