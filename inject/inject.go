// Package inject delivers transcribed text to a target application
// window: locate by title substring, focus, paste, then dispatch the
// configured commit keystroke.
package inject

import (
	"errors"
	"strings"
)

var (
	// ErrWindowNotFound means no top-level window title contained the
	// configured substring. Surfaced immediately, never retried.
	ErrWindowNotFound = errors.New("target window not found")
	// ErrEmptyText means there was nothing to inject.
	ErrEmptyText = errors.New("empty text")
	// ErrUnsupported is returned on platforms without an injector.
	ErrUnsupported = errors.New("window injection not supported on this platform")
)

// CommitMode selects the keystroke dispatched after text insertion.
type CommitMode int

const (
	// CommitEnter sends a single Enter key event.
	CommitEnter CommitMode = iota
	// CommitCtrlEnter sends Ctrl+Enter as one chorded event.
	CommitCtrlEnter
)

func (m CommitMode) String() string {
	if m == CommitCtrlEnter {
		return "ctrl+enter"
	}
	return "enter"
}

// ParseCommitMode maps a config value to a CommitMode; anything
// unrecognized falls back to Enter.
func ParseCommitMode(v string) CommitMode {
	if strings.ToLower(strings.TrimSpace(v)) == "ctrl+enter" {
		return CommitCtrlEnter
	}
	return CommitEnter
}

// TargetSpec identifies where and how to deliver the text.
type TargetSpec struct {
	// TitleSubstring selects the first top-level window whose title
	// contains it, case-insensitive. Empty matches the foreground window.
	TitleSubstring string
	Commit         CommitMode
}

// Injector performs the OS-level insertion. Fire-and-forget: it
// guarantees delivery of the keystrokes to the focused window's input
// queue, not that the target acted on them.
type Injector struct{}

// New creates an injector.
func New() *Injector {
	return &Injector{}
}

// Inject locates the target window, inserts text via clipboard paste
// (not per-character key simulation, so non-Latin text survives), and
// dispatches the commit keystroke.
func (i *Injector) Inject(spec TargetSpec, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	return injectOS(spec, text)
}

// titleMatches reports whether a window title matches the target.
func titleMatches(title, substring string) bool {
	if substring == "" {
		return false
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(substring))
}
