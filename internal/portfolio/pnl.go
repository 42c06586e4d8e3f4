package portfolio

import (
	"sort"

	tracker "github.com/solwatch/tracker"
)

type poolCostBasis struct {
	boughtUSD float64
	soldUSD   float64
	costBasis float64
}

// RealizedPnL implements the cost-basis algorithm of spec §4.10
// literally: trades are processed in ascending timestamp order, one
// running {bought_usd, sold_usd, cost_basis} accumulator per pool; a
// buy adds its USD to both bought_usd and cost_basis; a sell realizes
// usd - cost_basis*p where p = min(usd/cost_basis, 1), then reduces
// cost_basis by the same proportion. The total is the sum across pools.
func RealizedPnL(trades []tracker.Trade) float64 {
	sorted := append([]tracker.Trade(nil), trades...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	byPool := make(map[string]*poolCostBasis)
	var total float64

	for _, tr := range sorted {
		pcb, ok := byPool[tr.PoolID]
		if !ok {
			pcb = &poolCostBasis{}
			byPool[tr.PoolID] = pcb
		}

		switch tr.Direction {
		case tracker.DirectionBuy:
			pcb.boughtUSD += tr.USD
			pcb.costBasis += tr.USD
		case tracker.DirectionSell:
			pcb.soldUSD += tr.USD
			if pcb.costBasis > 0 {
				p := tr.USD / pcb.costBasis
				if p > 1 {
					p = 1
				}
				total += tr.USD - pcb.costBasis*p
				pcb.costBasis -= pcb.costBasis * p
			} else {
				total += tr.USD
			}
		}
	}

	return total
}
