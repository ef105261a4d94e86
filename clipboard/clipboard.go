// Package clipboard wraps text clipboard access with save and restore
// around transient writes.
package clipboard

import (
	"github.com/atotto/clipboard"
)

// GetText returns the current clipboard text.
func GetText() (string, error) {
	return clipboard.ReadAll()
}

// SetText replaces the clipboard text.
func SetText(text string) error {
	return clipboard.WriteAll(text)
}

// Snapshot remembers the clipboard contents at capture time so a
// transient write can be undone.
type Snapshot struct {
	text string
	ok   bool
}

// Save captures the current clipboard text. A read failure yields an
// empty snapshot; Restore then does nothing.
func Save() Snapshot {
	text, err := clipboard.ReadAll()
	if err != nil {
		return Snapshot{}
	}
	return Snapshot{text: text, ok: true}
}

// Restore puts the saved text back.
func (s Snapshot) Restore() error {
	if !s.ok {
		return nil
	}
	return clipboard.WriteAll(s.text)
}
