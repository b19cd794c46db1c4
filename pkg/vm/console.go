package vm

import "io"

// clearScreen is written for character codes outside 1..127.
const clearScreen = "\033[2J\033[1;1H"

// WriteConsole writes one character cell to w. Backspace also erases the
// character it moves over.
func WriteConsole(w io.Writer, c Cell) error {
	var err error
	switch {
	case c == 8:
		_, err = w.Write([]byte{8, 32, 8})
	case c > 0 && c < 128:
		_, err = w.Write([]byte{byte(c)})
	default:
		_, err = io.WriteString(w, clearScreen)
	}
	return err
}
