package anchor

// Offsets are measured in UTF-16 code units so that values captured by a
// browser client and values computed here agree.

// unitLen returns the length of s in UTF-16 code units.
func unitLen(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// byteIndex converts a UTF-16 offset into a byte index of s.
// An offset that falls between the halves of a surrogate pair is rounded down
// to the start of that rune.
func byteIndex(s string, units int) int {
	if units <= 0 {
		return 0
	}

	n := 0
	for i, r := range s {
		if n >= units {
			return i
		}
		w := runeUnits(r)
		if n+w > units {
			return i
		}
		n += w
	}
	return len(s)
}

// sliceUnits returns s[from:to] with both bounds expressed in UTF-16 units.
func sliceUnits(s string, from, to int) string {
	if to <= from {
		return ""
	}
	return s[byteIndex(s, from):byteIndex(s, to)]
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
