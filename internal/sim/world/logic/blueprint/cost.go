package blueprint

// StatCost is an amount of a named stat a building consumes.
type StatCost struct {
	Stat   string
	Amount float64
}

// Shortfall lists the costs that cannot be covered by the current values
// reported by have. Non-positive costs are ignored.
func Shortfall(cost []StatCost, have func(stat string) float64) []StatCost {
	if len(cost) == 0 {
		return nil
	}
	var out []StatCost
	for _, c := range cost {
		if c.Stat == "" || c.Amount <= 0 {
			continue
		}
		if v := have(c.Stat); v < c.Amount {
			out = append(out, StatCost{Stat: c.Stat, Amount: c.Amount - v})
		}
	}
	return out
}
