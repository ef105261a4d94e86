//go:build windows

package inject

import (
	"fmt"
	"log/slog"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/micmonay/keybd_event"

	"github.com/lightwhite-top/VoiceCoding/clipboard"
)

var (
	user32                   = syscall.NewLazyDLL("user32.dll")
	procEnumWindows          = user32.NewProc("EnumWindows")
	procGetWindowTextW       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW = user32.NewProc("GetWindowTextLengthW")
	procIsWindowVisible      = user32.NewProc("IsWindowVisible")
	procSetForegroundWindow  = user32.NewProc("SetForegroundWindow")
	procShowWindow           = user32.NewProc("ShowWindow")
	procGetForegroundWindow  = user32.NewProc("GetForegroundWindow")
)

const swRestore = 9

func injectOS(spec TargetSpec, text string) error {
	hwnd, title, err := findWindow(spec.TitleSubstring)
	if err != nil {
		return err
	}

	if err := focusWindow(hwnd); err != nil {
		return fmt.Errorf("focus window %q: %w", title, err)
	}
	time.Sleep(150 * time.Millisecond)

	if err := pasteText(text); err != nil {
		return fmt.Errorf("paste text: %w", err)
	}
	time.Sleep(120 * time.Millisecond)

	if err := sendCommit(spec.Commit); err != nil {
		return fmt.Errorf("send commit key: %w", err)
	}

	slog.Info("text injected", "window", title, "commit", spec.Commit.String(), "chars", len(text))
	return nil
}

// Callback slots are never released by the runtime, so the EnumWindows
// callback is created exactly once and reads its search state from the
// mutex-guarded package variables below.
var (
	enumMu sync.Mutex
	enumQ  struct {
		substring string
		found     uintptr
		title     string
	}
)

var enumWindowsCallback = syscall.NewCallback(func(hwnd, _ uintptr) uintptr {
	visible, _, _ := procIsWindowVisible.Call(hwnd)
	if visible == 0 {
		return 1 // continue
	}
	title := windowTitle(hwnd)
	if titleMatches(title, enumQ.substring) {
		enumQ.found = hwnd
		enumQ.title = title
		return 0 // stop enumeration
	}
	return 1
})

// findWindow returns the first visible top-level window whose title
// contains the substring. Empty substring targets whatever window
// currently has the foreground.
func findWindow(substring string) (uintptr, string, error) {
	if substring == "" {
		hwnd, _, _ := procGetForegroundWindow.Call()
		if hwnd == 0 {
			return 0, "", ErrWindowNotFound
		}
		return hwnd, windowTitle(hwnd), nil
	}

	enumMu.Lock()
	defer enumMu.Unlock()

	enumQ.substring = substring
	enumQ.found = 0
	enumQ.title = ""
	procEnumWindows.Call(enumWindowsCallback, 0)

	if enumQ.found == 0 {
		return 0, "", ErrWindowNotFound
	}
	return enumQ.found, enumQ.title, nil
}

func windowTitle(hwnd uintptr) string {
	length, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if length == 0 {
		return ""
	}
	buf := make([]uint16, length+1)
	procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), length+1)
	return syscall.UTF16ToString(buf)
}

func focusWindow(hwnd uintptr) error {
	// Restore first; SetForegroundWindow on a minimized window focuses
	// it without raising it.
	procShowWindow.Call(hwnd, swRestore)
	r, _, _ := procSetForegroundWindow.Call(hwnd)
	if r == 0 {
		return fmt.Errorf("SetForegroundWindow refused")
	}
	return nil
}

// pasteText writes text to the clipboard, sends Ctrl+V, and restores
// the previous clipboard contents.
func pasteText(text string) error {
	saved := clipboard.Save()
	if err := clipboard.SetText(text); err != nil {
		return err
	}
	time.Sleep(80 * time.Millisecond)

	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.HasCTRL(true)
	kb.SetKeys(keybd_event.VK_V)
	if err := kb.Launching(); err != nil {
		return err
	}
	time.Sleep(120 * time.Millisecond)
	_ = saved.Restore()
	return nil
}

func sendCommit(mode CommitMode) error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	if mode == CommitCtrlEnter {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_ENTER)
	return kb.Launching()
}
