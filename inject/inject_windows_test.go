//go:build windows

package inject

import (
	"errors"
	"testing"
)

// A tray process runs one window search per session for its whole
// lifetime; the enumeration callback slot must be reused, not minted per
// call, and stale search state must not leak between calls.
func TestFindWindowRepeatedSearches(t *testing.T) {
	first := enumWindowsCallback
	for i := 0; i < 2500; i++ {
		_, _, err := findWindow("zzz-no-such-window-title-zzz")
		if !errors.Is(err, ErrWindowNotFound) {
			t.Fatalf("iteration %d: err = %v, want ErrWindowNotFound", i, err)
		}
	}
	if enumWindowsCallback != first {
		t.Error("enumeration callback was recreated")
	}

	enumMu.Lock()
	defer enumMu.Unlock()
	if enumQ.found != 0 || enumQ.title != "" {
		t.Errorf("search state not reset: found=%#x title=%q", enumQ.found, enumQ.title)
	}
}
