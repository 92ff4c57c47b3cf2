package core

// CycleBudget counts the sends of one auto-run turn against a cap. A cap of
// zero or less never runs out. It is not safe for concurrent use.
type CycleBudget struct {
	max  int
	used int
}

// NewCycleBudget returns a budget of max sends of which used are already
// spent.
func NewCycleBudget(max, used int) *CycleBudget {
	return &CycleBudget{max: max, used: used}
}

// Next spends one send and reports whether the cap allowed it.
func (b *CycleBudget) Next() bool {
	if b.max > 0 && b.used >= b.max {
		return false
	}
	b.used++
	return true
}

// Used returns the number of sends spent.
func (b *CycleBudget) Used() int { return b.used }

// Left returns the sends still available, or -1 without a cap.
func (b *CycleBudget) Left() int {
	if b.max <= 0 {
		return -1
	}
	if b.used >= b.max {
		return 0
	}
	return b.max - b.used
}
