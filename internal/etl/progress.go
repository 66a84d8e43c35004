package etl

// milestones fires once per crossed multiple of ceil(total/100).
type milestones struct {
	step int64
	next int64
}

func newMilestones(total int64) *milestones {
	step := (total + 99) / 100
	if step < 1 {
		step = 1
	}
	return &milestones{step: step, next: step}
}

// observe reports whether processed reached a new milestone.
func (m *milestones) observe(processed int64) bool {
	if processed < m.next {
		return false
	}
	for m.next <= processed {
		m.next += m.step
	}
	return true
}

// resume fast-forwards past milestones already reported in an earlier pass.
func (m *milestones) resume(processed int64) {
	for m.next <= processed {
		m.next += m.step
	}
}
