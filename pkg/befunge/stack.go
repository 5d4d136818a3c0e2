package befunge

// Stack is the engine's LIFO of unsigned 32-bit cells.
// Popping an empty stack yields 0 and leaves it empty.
type Stack struct {
	data []uint32
}

// NewStack creates an empty stack with room for capacity values.
func NewStack(capacity int) *Stack {
	return &Stack{data: make([]uint32, 0, capacity)}
}

// Push appends v on top of the stack.
func (s *Stack) Push(v uint32) {
	s.data = append(s.data, v)
}

// Pop removes and returns the top value, or 0 when the stack is empty.
func (s *Stack) Pop() uint32 {
	n := len(s.data)
	if n == 0 {
		return 0
	}
	v := s.data[n-1]
	s.data = s.data[:n-1]
	return v
}

// Pop2 pops a then b; a is the value that was on top.
func (s *Stack) Pop2() (a, b uint32) {
	a = s.Pop()
	b = s.Pop()
	return a, b
}

// Pop3 pops a, b, then c.
func (s *Stack) Pop3() (a, b, c uint32) {
	a = s.Pop()
	b = s.Pop()
	c = s.Pop()
	return a, b, c
}

// Len returns the current depth.
func (s *Stack) Len() int {
	return len(s.data)
}

// Clear empties the stack, keeping its backing storage.
func (s *Stack) Clear() {
	s.data = s.data[:0]
}

// Values returns a copy of the stack contents, bottom first.
func (s *Stack) Values() []uint32 {
	out := make([]uint32, len(s.data))
	copy(out, s.data)
	return out
}
