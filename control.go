package expect

import (
	"fmt"
	"strings"
)

// ControlCode is a C0 control character (or DEL), see [Session.SendControl].
type ControlCode byte

const (
	Null                   ControlCode = 0x00
	StartOfHeading         ControlCode = 0x01
	StartOfText            ControlCode = 0x02
	EndOfText              ControlCode = 0x03 // ctrl+c, usually SIGINT
	EndOfTransmission      ControlCode = 0x04 // ctrl+d, usually EOF on an empty line
	Enquiry                ControlCode = 0x05
	Acknowledge            ControlCode = 0x06
	Bell                   ControlCode = 0x07
	Backspace              ControlCode = 0x08
	HorizontalTab          ControlCode = 0x09
	LineFeed               ControlCode = 0x0a
	VerticalTab            ControlCode = 0x0b
	FormFeed               ControlCode = 0x0c
	CarriageReturn         ControlCode = 0x0d
	ShiftOut               ControlCode = 0x0e
	ShiftIn                ControlCode = 0x0f
	DataLinkEscape         ControlCode = 0x10
	DeviceControl1         ControlCode = 0x11
	DeviceControl2         ControlCode = 0x12
	DeviceControl3         ControlCode = 0x13
	DeviceControl4         ControlCode = 0x14
	NegativeAcknowledge    ControlCode = 0x15
	SynchronousIdle        ControlCode = 0x16
	EndOfTransmissionBlock ControlCode = 0x17
	Cancel                 ControlCode = 0x18
	EndOfMedium            ControlCode = 0x19
	Substitute             ControlCode = 0x1a // ctrl+z, usually SIGTSTP
	Escape                 ControlCode = 0x1b
	FileSeparator          ControlCode = 0x1c // ctrl+\, usually SIGQUIT
	GroupSeparator         ControlCode = 0x1d // ctrl+]
	RecordSeparator        ControlCode = 0x1e
	UnitSeparator          ControlCode = 0x1f
	Delete                 ControlCode = 0x7f
)

// mnemonics are indexed by code, with DEL handled separately.
var mnemonics = [...]string{
	"nul", "soh", "stx", "etx", "eot", "enq", "ack", "bel",
	"bs", "ht", "lf", "vt", "ff", "cr", "so", "si",
	"dle", "dc1", "dc2", "dc3", "dc4", "nak", "syn", "etb",
	"can", "em", "sub", "esc", "fs", "gs", "rs", "us",
}

// controlAliases are the friendly key names, in addition to ctrl+<key>,
// ^<key> and the mnemonics.
var controlAliases = map[string]ControlCode{
	"enter":     CarriageReturn,
	"return":    CarriageReturn,
	"tab":       HorizontalTab,
	"backspace": Delete,
	"escape":    Escape,
	"del":       Delete,
	"ctrl+?":    Delete,
	"^?":        Delete,
}

// ParseControl resolves a control code by name, case insensitively.
// Accepted forms are "ctrl+c", "^C", mnemonics like "eot" or "etx", and a
// few key names ("enter", "tab", "backspace", "escape").
func ParseControl(name string) (ControlCode, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if c, ok := controlAliases[normalized]; ok {
		return c, nil
	}
	for i, v := range mnemonics {
		if v == normalized {
			return ControlCode(i), nil
		}
	}
	var key string
	switch {
	case strings.HasPrefix(normalized, "ctrl+"):
		key = normalized[len("ctrl+"):]
	case strings.HasPrefix(normalized, "^"):
		key = normalized[1:]
	}
	if len(key) == 1 {
		// the caret notation: ctrl+@ is 0x00 through to ctrl+_ at 0x1f
		if c := strings.ToUpper(key)[0]; c >= '@' && c <= '_' {
			return ControlCode(c - '@'), nil
		}
	}
	return 0, fmt.Errorf("expect: unknown control code: %q", name)
}

// Byte returns the raw byte value.
func (x ControlCode) Byte() byte { return byte(x) }

// Valid reports whether x is a C0 control character or DEL.
func (x ControlCode) Valid() bool { return x < 0x20 || x == Delete }

// String returns the mnemonic, e.g. "etx", or a hex form for other bytes.
func (x ControlCode) String() string {
	switch {
	case int(x) < len(mnemonics):
		return mnemonics[x]
	case x == Delete:
		return "del"
	default:
		return fmt.Sprintf("ControlCode(%#02x)", byte(x))
	}
}
