package hotkey

import (
	"fmt"
	"sort"
	"strings"
)

// Combo is a parsed key combination: zero or more modifiers plus one key.
// All names are normalized lowercase tokens.
type Combo struct {
	keys []string
}

// String returns the canonical "+"-joined form.
func (c Combo) String() string {
	return strings.Join(c.keys, "+")
}

// Keys returns the normalized key names forming the combo.
func (c Combo) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// modifier aliases mapped to canonical names. The raw hook reports
// left/right variants for modifiers; both count as the combo key.
var keyAliases = map[string]string{
	"control":       "ctrl",
	"lctrl":         "ctrl",
	"rctrl":         "ctrl",
	"left ctrl":     "ctrl",
	"right ctrl":    "ctrl",
	"menu":          "alt",
	"lalt":          "alt",
	"ralt":          "alt",
	"left alt":      "alt",
	"right alt":     "alt",
	"lshift":        "shift",
	"rshift":        "shift",
	"left shift":    "shift",
	"right shift":   "shift",
	"win":           "cmd",
	"super":         "cmd",
	"meta":          "cmd",
	"command":       "cmd",
	"lcmd":          "cmd",
	"rcmd":          "cmd",
	"return":        "enter",
	"escape":        "esc",
	"spacebar":      "space",
	" ":             "space",
}

// knownKeys are the non-modifier tokens accepted in a combo, beyond
// single letters, digits and function keys.
var knownKeys = map[string]bool{
	"space": true, "enter": true, "esc": true, "tab": true,
	"backspace": true, "delete": true, "insert": true,
	"home": true, "end": true, "pageup": true, "pagedown": true,
	"left": true, "up": true, "right": true, "down": true,
}

var modifierKeys = map[string]bool{
	"ctrl": true, "alt": true, "shift": true, "cmd": true,
}

func normalizeKey(name string) string {
	// The raw hook reports the space key as a literal space character;
	// look it up before trimming eats it.
	if canon, ok := keyAliases[strings.ToLower(name)]; ok {
		return canon
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if canon, ok := keyAliases[name]; ok {
		return canon
	}
	return name
}

func validKey(tok string) bool {
	if modifierKeys[tok] || knownKeys[tok] {
		return true
	}
	if len(tok) == 1 {
		ch := tok[0]
		return (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9')
	}
	// f1..f24
	if strings.HasPrefix(tok, "f") && len(tok) <= 3 {
		for _, ch := range tok[1:] {
			if ch < '0' || ch > '9' {
				return false
			}
		}
		return len(tok) > 1
	}
	return false
}

// ParseCombo parses strings like "ctrl+alt+space" or "f9" into a Combo.
// Legacy pynput-style markup ("<ctrl>+<alt>+<space>") is accepted so a
// migrated config file keeps working.
func ParseCombo(s string) (Combo, error) {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	parts := strings.Split(s, "+")

	seen := make(map[string]bool)
	var keys []string
	for _, p := range parts {
		tok := normalizeKey(p)
		if tok == "" {
			return Combo{}, fmt.Errorf("empty key token in %q", s)
		}
		if !validKey(tok) {
			return Combo{}, fmt.Errorf("unsupported key token %q", tok)
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		keys = append(keys, tok)
	}
	if len(keys) == 0 {
		return Combo{}, fmt.Errorf("empty combo")
	}

	nonMods := 0
	for _, k := range keys {
		if !modifierKeys[k] {
			nonMods++
		}
	}
	if nonMods > 1 {
		return Combo{}, fmt.Errorf("combo %q has more than one non-modifier key", s)
	}

	// Canonical ordering: modifiers first, stable for String().
	sort.SliceStable(keys, func(i, j int) bool {
		return modifierKeys[keys[i]] && !modifierKeys[keys[j]]
	})

	return Combo{keys: keys}, nil
}

// tracker turns raw per-key down/up transitions into debounced combo
// events: Pressed only on the 0-to-1 transition of the full combo held,
// Released only on 1-to-0.
type tracker struct {
	combo map[string]bool
	held  map[string]bool
	down  bool
}

func newTracker(c Combo) *tracker {
	combo := make(map[string]bool, len(c.keys))
	for _, k := range c.keys {
		combo[k] = true
	}
	return &tracker{combo: combo, held: make(map[string]bool)}
}

func (t *tracker) handle(key string, down bool) (Event, bool) {
	if !t.combo[key] {
		// A foreign key does not cancel the combo; only combo keys count.
		return Event{}, false
	}

	t.held[key] = down

	all := true
	for k := range t.combo {
		if !t.held[k] {
			all = false
			break
		}
	}

	switch {
	case all && !t.down:
		t.down = true
		return Event{Kind: Pressed}, true
	case !all && t.down:
		t.down = false
		return Event{Kind: Released}, true
	}
	return Event{}, false
}
