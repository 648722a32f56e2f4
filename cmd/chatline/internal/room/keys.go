package room

import (
	"github.com/chzyer/readline"

	"github.com/tinyland-inc/chatline/pkg/typing"
)

// keyFromReadline maps a raw readline key to a composer keystroke.
func keyFromReadline(key rune) typing.Key {
	switch {
	case key == readline.CharBackspace || key == readline.CharCtrlH:
		return typing.Key{Backspace: true}
	case key == readline.CharEnter || key == readline.CharCtrlJ:
		return typing.Key{Enter: true}
	case key == readline.CharEsc:
		return typing.Key{Alt: true}
	case key > 0 && key < 0x20:
		return typing.Key{Ctrl: true, Rune: key}
	default:
		return typing.Key{Rune: key}
	}
}

// keystrokeListener feeds every key to fn and leaves the line untouched.
func keystrokeListener(fn func(typing.Key)) readline.Listener {
	return readline.FuncListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		if key != 0 {
			fn(keyFromReadline(key))
		}
		return nil, 0, false
	})
}
