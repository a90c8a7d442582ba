// Copyright 2026 The TermuxWC Authors
// SPDX-License-Identifier: Apache-2.0

package input

// keysyms maps X11 keysyms (as sent in RFB KeyEvent) to Linux evdev
// key codes on a US layout. Shifted symbols map to the key that
// produces them; the viewer sends the Shift keysym separately.
var keysyms = map[uint32]uint32{
	0xff08: 14,  // BackSpace
	0xff09: 15,  // Tab
	0xff0d: 28,  // Return
	0xff1b: 1,   // Escape
	0xffff: 111, // Delete
	0xff50: 102, // Home
	0xff51: 105, // Left
	0xff52: 103, // Up
	0xff53: 106, // Right
	0xff54: 108, // Down
	0xff55: 104, // Page_Up
	0xff56: 109, // Page_Down
	0xff57: 107, // End
	0xff63: 110, // Insert
	0xff8d: 96,  // KP_Enter
	0xffe1: 42,  // Shift_L
	0xffe2: 54,  // Shift_R
	0xffe3: 29,  // Control_L
	0xffe4: 97,  // Control_R
	0xffe5: 58,  // Caps_Lock
	0xffe7: 125, // Meta_L
	0xffe8: 126, // Meta_R
	0xffe9: 56,  // Alt_L
	0xffea: 100, // Alt_R
	0xffeb: 125, // Super_L
	0xffec: 126, // Super_R

	' ': 57,
	'-': 12, '_': 12,
	'=': 13, '+': 13,
	'[': 26, '{': 26,
	']': 27, '}': 27,
	';': 39, ':': 39,
	'\'': 40, '"': 40,
	'`': 41, '~': 41,
	'\\': 43, '|': 43,
	',': 51, '<': 51,
	'.': 52, '>': 52,
	'/': 53, '?': 53,
	'!': 2, '@': 3, '#': 4, '$': 5, '%': 6,
	'^': 7, '&': 8, '*': 9, '(': 10, ')': 11,
}

var letterKeycodes = [26]uint32{
	30, 48, 46, 32, 18, 33, 34, 35, 23, 36, 37, 38, 50, // a-m
	49, 24, 25, 16, 19, 31, 20, 22, 47, 17, 45, 21, 44, // n-z
}

// KeysymToKeycode translates an X11 keysym to an evdev key code.
func KeysymToKeycode(keysym uint32) (uint32, bool) {
	switch {
	case keysym >= 'a' && keysym <= 'z':
		return letterKeycodes[keysym-'a'], true
	case keysym >= 'A' && keysym <= 'Z':
		return letterKeycodes[keysym-'A'], true
	case keysym >= '1' && keysym <= '9':
		return keysym - '1' + 2, true
	case keysym == '0':
		return 11, true
	case keysym >= 0xffbe && keysym <= 0xffc7: // F1-F10
		return keysym - 0xffbe + 59, true
	case keysym == 0xffc8: // F11
		return 87, true
	case keysym == 0xffc9: // F12
		return 88, true
	}
	keycode, ok := keysyms[keysym]
	return keycode, ok
}
