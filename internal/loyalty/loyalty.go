// Package loyalty holds the pure point arithmetic shared by every store
// implementation: redeem validation, discount allocation, and earn totals.
package loyalty

import (
	"errors"
	"sort"
)

// RedeemRate is how many points buy one drink unit.
const RedeemRate = 10

var (
	ErrNotMultiple     = errors.New("redeem points must be a positive multiple of the redeem rate")
	ErrExceedsQuantity = errors.New("redeem quantity exceeds cart quantity")
)

// Line is one aggregated cart line with its snapshot price and the points a
// single unit earns.
type Line struct {
	ProductID  int64
	Qty        int
	Price      int64
	PointValue int
}

// Allocation is the outcome of applying a redeem request to a cart.
// RedeemedQty is indexed like the input lines.
type Allocation struct {
	Discount     int64
	RedeemedQty  []int
	PointsEarned int
	FullRedeem   bool
}

// Allocate applies redeemPoints to the cart. Redeemed units are assigned to
// the cheapest lines first, so the discount can never exceed the cart
// subtotal. Points are earned only on units that were not redeemed, and a
// full redeem earns nothing.
func Allocate(lines []Line, redeemPoints int) (Allocation, error) {
	alloc := Allocation{RedeemedQty: make([]int, len(lines))}

	totalQty := 0
	for _, line := range lines {
		totalQty += line.Qty
	}

	if redeemPoints > 0 {
		if redeemPoints%RedeemRate != 0 {
			return Allocation{}, ErrNotMultiple
		}
		redeemQty := redeemPoints / RedeemRate
		if redeemQty > totalQty {
			return Allocation{}, ErrExceedsQuantity
		}

		order := make([]int, len(lines))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return lines[order[a]].Price < lines[order[b]].Price
		})

		remaining := redeemQty
		for _, idx := range order {
			if remaining == 0 {
				break
			}
			take := lines[idx].Qty
			if take > remaining {
				take = remaining
			}
			alloc.RedeemedQty[idx] = take
			alloc.Discount += lines[idx].Price * int64(take)
			remaining -= take
		}
		alloc.FullRedeem = redeemQty == totalQty
	}

	if !alloc.FullRedeem {
		for i, line := range lines {
			alloc.PointsEarned += line.PointValue * (line.Qty - alloc.RedeemedQty[i])
		}
	}
	return alloc, nil
}

// EarnTotal is the points a cart earns when nothing is redeemed.
func EarnTotal(lines []Line) int {
	total := 0
	for _, line := range lines {
		total += line.PointValue * line.Qty
	}
	return total
}
