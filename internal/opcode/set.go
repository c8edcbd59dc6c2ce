package opcode

// Set is an ordered opcode mapping keyed by Opcode.Key. Put replaces an
// existing entry and moves it to the end, so iteration always visits the most
// recently written (most specific) value last.
type Set struct {
	ops   []Opcode
	index map[string]int
}

func NewSet() *Set {
	return &Set{index: make(map[string]int)}
}

// Clone returns an independent copy; later writes to either side are not
// visible to the other.
func (s *Set) Clone() *Set {
	out := &Set{
		ops:   make([]Opcode, len(s.ops)),
		index: make(map[string]int, len(s.index)),
	}
	copy(out.ops, s.ops)
	for k, v := range s.index {
		out.index[k] = v
	}
	return out
}

func (s *Set) Put(op Opcode) {
	key := op.Key()
	if i, ok := s.index[key]; ok {
		copy(s.ops[i:], s.ops[i+1:])
		s.ops = s.ops[:len(s.ops)-1]
		for j := i; j < len(s.ops); j++ {
			s.index[s.ops[j].Key()] = j
		}
	}
	s.index[key] = len(s.ops)
	s.ops = append(s.ops, op)
}

func (s *Set) Get(key string) (Opcode, bool) {
	i, ok := s.index[key]
	if !ok {
		return Opcode{}, false
	}
	return s.ops[i], true
}

func (s *Set) Len() int { return len(s.ops) }

// Each visits the opcodes in write order.
func (s *Set) Each(fn func(Opcode)) {
	for _, op := range s.ops {
		fn(op)
	}
}

// Opcodes returns a copy of the opcodes in write order.
func (s *Set) Opcodes() []Opcode {
	out := make([]Opcode, len(s.ops))
	copy(out, s.ops)
	return out
}
