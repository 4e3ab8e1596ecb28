package grid

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Report renders a status table for a set of controllers, one row per
// symbol plus a totals row. The manager logs it on the report interval.
func Report(statuses []Status) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Symbol", "State", "Regime", "Price", "Capital", "Ladder", "Counters", "Fills", "Realized", "Daily PnL"})

	var totalCapital, totalRealized, totalDaily float64
	totalFills := 0
	for _, s := range statuses {
		state := "active"
		if s.Halted {
			state = "halted"
		} else if s.Paused {
			state = fmt.Sprintf("paused (%s)", s.PauseReason)
		}
		t.AppendRow(table.Row{
			s.Symbol,
			state,
			string(s.Regime),
			fmt.Sprintf("%.4f", s.Price),
			fmt.Sprintf("%.2f", s.Capital),
			s.LadderOrders,
			s.CounterOrders,
			s.Fills + s.CounterFills,
			fmt.Sprintf("%+.4f", s.RealizedProfit),
			fmt.Sprintf("%+.2f", s.DailyPnL),
		})
		totalCapital += s.Capital
		totalRealized += s.RealizedProfit
		totalDaily += s.DailyPnL
		totalFills += s.Fills + s.CounterFills
	}

	t.AppendFooter(table.Row{
		"TOTAL", "", "", "",
		fmt.Sprintf("%.2f", totalCapital),
		"", "",
		totalFills,
		fmt.Sprintf("%+.4f", totalRealized),
		fmt.Sprintf("%+.2f", totalDaily),
	})
	return t.Render()
}
