package opcode

import (
	"strconv"
	"strings"
)

// Opcode is a single name=value pair from an instrument definition. A trailing
// number on the raw name is split off into Index (xfin_locc24 -> xfin_locc, 24).
type Opcode struct {
	Name     string
	Index    int
	HasIndex bool
	Value    string
	Kind     Kind
}

// Parse builds an Opcode from the raw name and value as found in the text.
func Parse(raw, value string) Opcode {
	raw = strings.TrimSpace(raw)
	op := Opcode{Name: raw, Value: strings.TrimSpace(value)}
	end := len(raw)
	for end > 0 && raw[end-1] >= '0' && raw[end-1] <= '9' {
		end--
	}
	// A name made only of digits, or a suffix glued to nothing, stays literal.
	if end > 0 && end < len(raw) {
		if idx, err := strconv.Atoi(raw[end:]); err == nil {
			op.Name = raw[:end]
			op.Index = idx
			op.HasIndex = true
		}
	}
	op.Kind = Lookup(op.Name)
	if op.Kind == KindUnknown && op.HasIndex {
		// Not a parameterized family after all (e.g. a future opcode that
		// happens to end in a digit): keep the raw name intact.
		op.Name = raw
		op.Index = 0
		op.HasIndex = false
	}
	return op
}

// Key identifies the opcode inside a scope: the raw name including its suffix.
func (o Opcode) Key() string {
	if !o.HasIndex {
		return o.Name
	}
	return o.Name + strconv.Itoa(o.Index)
}

func (o Opcode) String() string {
	return o.Key() + "=" + o.Value
}

// ParseInt reads an integer value. Fractional input is truncated toward zero,
// which matches how sfz players read "60.0" for a key number.
func ParseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}

// ParseFloat reads a floating point value.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

var noteOffsets = map[byte]int{
	'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11,
}

// ParseKey reads a MIDI key either as a number or as a note name (c4 = 60,
// c#4 = 61, db4 = 61, c-1 = 0).
func ParseKey(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if v, ok := ParseInt(s); ok {
		return v, true
	}
	if len(s) < 2 {
		return 0, false
	}
	base, ok := noteOffsets[lower(s[0])]
	if !ok {
		return 0, false
	}
	i := 1
	switch s[i] {
	case '#':
		base++
		i++
	case 'b':
		// "b" after the letter is a flat only when an octave number follows.
		if i+1 < len(s) && (s[i+1] == '-' || (s[i+1] >= '0' && s[i+1] <= '9')) {
			base--
			i++
		}
	}
	octave, err := strconv.Atoi(s[i:])
	if err != nil {
		return 0, false
	}
	return (octave+1)*12 + base, true
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
