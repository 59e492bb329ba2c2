package keybind

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
)

// Parse errors.
var (
	ErrEmptyKey   = errors.New("empty key specification")
	ErrInvalidKey = errors.New("invalid key specification")
)

// mods are kept in canonical order.
type mods uint8

const (
	modCtrl mods = 1 << iota
	modAlt
	modShift
	modMeta
)

func (m mods) prefix() string {
	var b strings.Builder
	for _, p := range []struct {
		m    mods
		name string
	}{{modCtrl, "Ctrl"}, {modAlt, "Alt"}, {modShift, "Shift"}, {modMeta, "Meta"}} {
		if m&p.m != 0 {
			b.WriteString(p.name)
			b.WriteByte('+')
		}
	}
	return b.String()
}

var modifierNames = map[string]mods{
	"ctrl":    modCtrl,
	"control": modCtrl,
	"c":       modCtrl,
	"alt":     modAlt,
	"a":       modAlt,
	"option":  modAlt,
	"shift":   modShift,
	"s":       modShift,
	"meta":    modMeta,
	"m":       modMeta,
	"cmd":     modMeta,
	"super":   modMeta,
}

var namedKeys = map[tcell.Key]string{
	tcell.KeyEnter:      "Enter",
	tcell.KeyTab:        "Tab",
	tcell.KeyBacktab:    "Backtab",
	tcell.KeyBackspace:  "Backspace",
	tcell.KeyBackspace2: "Backspace",
	tcell.KeyEscape:     "Esc",
	tcell.KeyDelete:     "Delete",
	tcell.KeyInsert:     "Insert",
	tcell.KeyHome:       "Home",
	tcell.KeyEnd:        "End",
	tcell.KeyPgUp:       "PgUp",
	tcell.KeyPgDn:       "PgDn",
	tcell.KeyUp:         "Up",
	tcell.KeyDown:       "Down",
	tcell.KeyLeft:       "Left",
	tcell.KeyRight:      "Right",
	tcell.KeyF1:         "F1",
	tcell.KeyF2:         "F2",
	tcell.KeyF3:         "F3",
	tcell.KeyF4:         "F4",
	tcell.KeyF5:         "F5",
	tcell.KeyF6:         "F6",
	tcell.KeyF7:         "F7",
	tcell.KeyF8:         "F8",
	tcell.KeyF9:         "F9",
	tcell.KeyF10:        "F10",
	tcell.KeyF11:        "F11",
	tcell.KeyF12:        "F12",
}

// keyAliases maps lower-case spellings to canonical key names.
var keyAliases = func() map[string]string {
	m := map[string]string{
		"return":   "Enter",
		"cr":       "Enter",
		"escape":   "Esc",
		"bs":       "Backspace",
		"del":      "Delete",
		"ins":      "Insert",
		"pageup":   "PgUp",
		"pagedown": "PgDn",
		"space":    "Space",
		"plus":     "+",
		"minus":    "-",
	}
	for _, name := range namedKeys {
		m[strings.ToLower(name)] = name
	}
	return m
}()

// EventName returns the canonical name of a key event.
func EventName(ev *tcell.EventKey) string {
	m := fromTcell(ev.Modifiers())
	k := ev.Key()

	var base string
	switch {
	case k == tcell.KeyRune:
		// Shift is already reflected in the rune.
		m &^= modShift
		base = runeName(ev.Rune(), m)
	case k == tcell.KeyCtrlSpace:
		m |= modCtrl
		base = "Space"
	case k >= tcell.KeyCtrlA && k <= tcell.KeyCtrlZ && (m&modCtrl != 0 || namedKeys[k] == ""):
		// Tab, Enter and Backspace share codes with Ctrl+I, Ctrl+M and Ctrl+H.
		m |= modCtrl
		base = string(rune('A' + (k - tcell.KeyCtrlA)))
	default:
		if name, ok := namedKeys[k]; ok {
			base = name
		} else {
			base = "Key" + strconv.Itoa(int(k))
		}
	}
	return m.prefix() + base
}

func fromTcell(tm tcell.ModMask) mods {
	var m mods
	if tm&tcell.ModCtrl != 0 {
		m |= modCtrl
	}
	if tm&tcell.ModAlt != 0 {
		m |= modAlt
	}
	if tm&tcell.ModShift != 0 {
		m |= modShift
	}
	if tm&tcell.ModMeta != 0 {
		m |= modMeta
	}
	return m
}

func runeName(r rune, m mods) string {
	if r == ' ' {
		return "Space"
	}
	if m&modCtrl != 0 {
		r = unicode.ToUpper(r)
	}
	return string(r)
}

// ParseKey returns the canonical name of a key specification.
func ParseKey(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", ErrEmptyKey
	}

	var parts []string
	switch {
	case len(spec) > 2 && strings.HasPrefix(spec, "<") && strings.HasSuffix(spec, ">"):
		parts = splitSpec(spec[1:len(spec)-1], "-")
	case strings.Contains(spec[1:], "+"):
		parts = splitSpec(spec, "+")
	case strings.Contains(spec[1:], "-"):
		// tcell's own "Ctrl-G" spelling.
		if head, _, _ := strings.Cut(spec, "-"); modifierNames[strings.ToLower(head)] != 0 {
			parts = splitSpec(spec, "-")
		}
	}
	if parts == nil {
		parts = []string{spec}
	}

	var m mods
	for _, p := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			return "", fmt.Errorf("%w: unknown modifier %q in %q", ErrInvalidKey, p, spec)
		}
		m |= mod
	}

	base := strings.TrimSpace(parts[len(parts)-1])
	if base == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, spec)
	}
	if utf8.RuneCountInString(base) == 1 {
		r, _ := utf8.DecodeRuneInString(base)
		if m&modShift != 0 && unicode.IsLetter(r) {
			m &^= modShift
			r = unicode.ToUpper(r)
		}
		return m.prefix() + runeName(r, m), nil
	}
	name, ok := keyAliases[strings.ToLower(base)]
	if !ok {
		return "", fmt.Errorf("%w: unknown key %q in %q", ErrInvalidKey, base, spec)
	}
	return m.prefix() + name, nil
}

// splitSpec splits on sep, keeping a trailing separator as the key itself
// so that "Ctrl++" names the plus key.
func splitSpec(s, sep string) []string {
	if strings.HasSuffix(s, sep+sep) {
		parts := strings.Split(strings.TrimSuffix(s, sep+sep), sep)
		return append(parts, sep)
	}
	return strings.Split(s, sep)
}
