package lob

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
)

// RenderState writes the aggregated book as a price/quantity/side table:
// asks from the worst level down to the best, then bids from the best level
// down. Presentation only; not part of the engine contract.
func (b *OrderBook) RenderState(w io.Writer) {
	fmt.Fprintf(w, "\nOrder book at step %d\n", b.step)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"price", "quantity", "side"})

	state := b.State()
	for i := len(state.Asks) - 1; i >= 0; i-- {
		table.Append([]string{state.Asks[i].Price.String(), state.Asks[i].Quantity.String(), "ask"})
	}
	for _, level := range state.Bids {
		table.Append([]string{level.Price.String(), level.Quantity.String(), "bid"})
	}

	table.Render()
}
