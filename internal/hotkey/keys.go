package hotkey

import "softkm/internal/protocol"

// modifierNames maps chord modifier names to wire modifier bits.
var modifierNames = map[string]uint32{
	"CTRL":    protocol.ModControl,
	"CONTROL": protocol.ModControl,
	"SHIFT":   protocol.ModShift,
	"ALT":     protocol.ModOption,
	"OPT":     protocol.ModOption,
	"OPTION":  protocol.ModOption,
	"CMD":     protocol.ModCommand,
	"COMMAND": protocol.ModCommand,
	"SUPER":   protocol.ModCommand,
	"FN":      protocol.ModFunction,
}

// keyNames maps chord key names to the key codes that satisfy them.
var keyNames = map[string][]uint16{
	// Delete and Backspace are the same physical key; either name also
	// accepts the forward-delete key.
	"DELETE":    {0x33, 0x75},
	"BACKSPACE": {0x33, 0x75},
	"SPACE":     {49},
	"ENTER":     {36},
	"RETURN":    {36},
	"TAB":       {48},
	"ESC":       {53},

	"A": {0}, "B": {11}, "C": {8}, "D": {2}, "E": {14}, "F": {3}, "G": {5},
	"H": {4}, "I": {34}, "J": {38}, "K": {40}, "L": {37}, "M": {46}, "N": {45},
	"O": {31}, "P": {35}, "Q": {12}, "R": {15}, "S": {1}, "T": {17}, "U": {32},
	"V": {9}, "W": {13}, "X": {7}, "Y": {16}, "Z": {6},

	"0": {29}, "1": {18}, "2": {19}, "3": {20}, "4": {21},
	"5": {23}, "6": {22}, "7": {26}, "8": {28}, "9": {25},

	"F1": {122}, "F2": {120}, "F3": {99}, "F4": {118}, "F5": {96}, "F6": {97},
	"F7": {98}, "F8": {100}, "F9": {101}, "F10": {109}, "F11": {103}, "F12": {111},
}
