package stage

// Tier is a difficulty level for interviewer questions, ordered easiest first.
type Tier string

const (
	TierFoundational Tier = "foundational"
	TierIntermediate Tier = "intermediate"
	TierAdvanced     Tier = "advanced"
	TierExpert       Tier = "expert"
)

// tierOrder maps each tier to its rank, easiest first.
var tierOrder = map[Tier]int{
	TierFoundational: 0,
	TierIntermediate: 1,
	TierAdvanced:     2,
	TierExpert:       3,
}

// tiersByRank is the inverse of tierOrder.
var tiersByRank = []Tier{TierFoundational, TierIntermediate, TierAdvanced, TierExpert}

// IsValid reports whether t is a recognised tier.
func (t Tier) IsValid() bool {
	_, ok := tierOrder[t]
	return ok
}

// Rank returns the tier's position in easiest-first order, or -1 for an
// unknown tier.
func (t Tier) Rank() int {
	r, ok := tierOrder[t]
	if !ok {
		return -1
	}
	return r
}

// Up returns the next harder tier, or t itself when already at the top.
func (t Tier) Up() Tier {
	r := t.Rank()
	if r < 0 || r == len(tiersByRank)-1 {
		return t
	}
	return tiersByRank[r+1]
}

// Down returns the next easier tier, or t itself when already at the bottom.
func (t Tier) Down() Tier {
	r := t.Rank()
	if r <= 0 {
		return t
	}
	return tiersByRank[r-1]
}

// Clamp constrains t to the inclusive [min, max] range. Unknown tiers clamp
// to min.
func (t Tier) Clamp(min, max Tier) Tier {
	r := t.Rank()
	if r < 0 || r < min.Rank() {
		return min
	}
	if r > max.Rank() {
		return max
	}
	return t
}
