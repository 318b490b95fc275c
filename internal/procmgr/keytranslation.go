package procmgr

import "strings"

const esc = "\x1b"

var namedKeys = map[string]string{
	"enter": "\n", "return": "\n", "cr": "\n",
	"tab":       "\t",
	"escape":    esc, "esc": esc,
	"space":     " ",
	"backspace": "\x7f", "bs": "\x7f",
	"delete": esc + "[3~", "del": esc + "[3~",
	"insert": esc + "[2~", "ins": esc + "[2~",
	"up":    esc + "[A",
	"down":  esc + "[B",
	"right": esc + "[C",
	"left":  esc + "[D",
	"home":  esc + "[H",
	"end":   esc + "[F",
	"pageup": esc + "[5~", "pgup": esc + "[5~",
	"pagedown": esc + "[6~", "pgdn": esc + "[6~",
	"f1": esc + "OP", "f2": esc + "OQ", "f3": esc + "OR", "f4": esc + "OS",
	"f5": esc + "[15~", "f6": esc + "[17~", "f7": esc + "[18~", "f8": esc + "[19~",
	"f9": esc + "[20~", "f10": esc + "[21~", "f11": esc + "[23~", "f12": esc + "[24~",
}

// translateToken converts one whitespace-delimited send_keys token
// into its byte representation using the named-key table above.
// Unrecognized tokens are sent as literal UTF-8.
func translateToken(token string) []byte {
	lower := strings.ToLower(token)

	if seq, ok := namedKeys[lower]; ok {
		return []byte(seq)
	}

	if strings.HasPrefix(lower, "ctrl-") && len(token) == len("ctrl-")+1 {
		ch := lower[len(lower)-1]
		switch {
		case ch >= 'a' && ch <= 'z':
			return []byte{ch - 'a' + 1}
		case ch == '@':
			return []byte{0}
		case ch == '[':
			return []byte{0x1b}
		case ch == '\\':
			return []byte{0x1c}
		case ch == ']':
			return []byte{0x1d}
		case ch == '^':
			return []byte{0x1e}
		case ch == '_':
			return []byte{0x1f}
		}
	}

	return []byte(token)
}

// translateKeys tokenizes a whitespace-separated string and
// translates each token in order, preserving token order in the
// concatenated byte output.
func translateKeys(keys string) []byte {
	tokens := strings.Fields(keys)
	var out []byte
	for _, t := range tokens {
		out = append(out, translateToken(t)...)
	}
	return out
}
