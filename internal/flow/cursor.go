package flow

// Cursor is a position within [first, last] with an optional sub-position
// for steps that ask several questions in a row. A position past last marks
// the flow complete.
type Cursor struct {
	Pos   int `json:"pos"`
	Sub   int `json:"sub"`
	first int
	last  int
}

// NewCursor returns a cursor at first.
func NewCursor(first, last int) Cursor {
	return Cursor{Pos: first, first: first, last: last}
}

// Restore rebuilds a cursor from persisted pos/sub values.
func Restore(first, last, pos, sub int) Cursor {
	c := NewCursor(first, last)
	if pos >= first && pos <= last+1 {
		c.Pos = pos
		c.Sub = sub
	}
	return c
}

// Done reports whether the cursor moved past the last position.
func (c Cursor) Done() bool { return c.Pos > c.last }

// Forward moves to the next position and resets the sub-position.
func (c *Cursor) Forward() {
	if c.Done() {
		return
	}
	c.Pos++
	c.Sub = 0
}

// ForwardSub moves to the next sub-position of the current position.
func (c *Cursor) ForwardSub() { c.Sub++ }

// Back moves to the previous position, never before first. The sub-position
// resets.
func (c *Cursor) Back() bool {
	if c.Pos <= c.first {
		return false
	}
	c.Pos--
	c.Sub = 0
	return true
}

// Jump moves directly to pos when it is within [first, last].
func (c *Cursor) Jump(pos int) bool {
	if pos < c.first || pos > c.last {
		return false
	}
	c.Pos = pos
	c.Sub = 0
	return true
}
