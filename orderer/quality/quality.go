// Package quality scores transaction orders for downstream pipelining.
//
// A transaction that conflicts with a recent predecessor stalls a pipelined
// executor for longer than one that conflicts only with the distant past.
// The score charges every transaction by its distance to the nearest
// conflicting predecessor in the final order; orders that spread conflicting
// transactions further apart score lower.
package quality

import (
	"github.com/oasisprotocol/block-orderer/orderer/api"
	"github.com/oasisprotocol/block-orderer/orderer/internal/deptrack"
)

// CostFunction maps the distance between a transaction and its nearest
// conflicting predecessor to a cost.  Distances are always positive.
type CostFunction func(distance int) float64

// AmortizedInverseDependencyCost returns the cost function 1/(decay+distance).
//
// With zero decay an adjacent conflict costs a full unit; larger decay values
// flatten the penalty curve so that only order-of-magnitude improvements in
// conflict spacing show up in the total.
func AmortizedInverseDependencyCost(decay float64) CostFunction {
	return func(distance int) float64 {
		return 1.0 / (decay + float64(distance))
	}
}

// OrderTotalCost scores an entire transaction order.  Every transaction with
// at least one conflicting predecessor contributes the cost of its distance
// to the nearest one; independent transactions are free.
func OrderTotalCost[T api.Transaction[K], K comparable](order []T, fn CostFunction) float64 {
	index := deptrack.NewKeyIndex[K]()

	var (
		total float64
		preds []int32
	)
	for i, tx := range order {
		preds = index.Visit(int32(i), tx.ReadSet(), tx.WriteSet(), preds[:0])

		nearest := deptrack.NoTx
		for _, p := range preds {
			if p > nearest {
				nearest = p
			}
		}
		if nearest != deptrack.NoTx {
			total += fn(i - int(nearest))
		}
	}
	return total
}
