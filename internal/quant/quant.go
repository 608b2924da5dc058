// Package quant quantizes prices and sizes to a venue's pool constraints
// (tick size, lot size, minimum order size).
package quant

import (
	"fmt"
	"math"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
)

// PoolParams are a venue pool's quantization constraints, all expressed in
// the pool's native units (quote units per base unit for TickSize, base
// units for LotSize/MinSize).
type PoolParams struct {
	TickSize float64
	LotSize  float64
	MinSize  float64
}

// Price floors price to the nearest multiple of tickSize, requiring at
// least one tick step.
func Price(price, tickSize float64) (float64, error) {
	if !(tickSize > 0 && !math.IsInf(tickSize, 0) && !math.IsNaN(tickSize)) {
		return 0, fmt.Errorf("%w: tick size must be positive", aggrerrors.ErrBuildTx)
	}
	if !(price > 0 && !math.IsInf(price, 0) && !math.IsNaN(price)) {
		return 0, fmt.Errorf("%w: price must be positive and finite", aggrerrors.ErrBuildTx)
	}
	steps := math.Floor(price / tickSize)
	if steps < 1.0 {
		return 0, fmt.Errorf("%w: price %g is below minimum tick %g", aggrerrors.ErrBuildTx, price, tickSize)
	}
	return steps * tickSize, nil
}

// Size floors quantity to the nearest multiple of lotSize, requiring the
// input to already meet minSize and at least one lot step after flooring.
func Size(quantity, lotSize, minSize float64) (float64, error) {
	if !(lotSize > 0 && !math.IsInf(lotSize, 0) && !math.IsNaN(lotSize)) {
		return 0, fmt.Errorf("%w: lot size must be positive", aggrerrors.ErrBuildTx)
	}
	if !(minSize > 0 && !math.IsInf(minSize, 0) && !math.IsNaN(minSize)) {
		return 0, fmt.Errorf("%w: min size must be positive", aggrerrors.ErrBuildTx)
	}
	if !(quantity >= minSize && !math.IsNaN(quantity)) {
		return 0, fmt.Errorf("%w: quantity %g below minimum size %g", aggrerrors.ErrBuildTx, quantity, minSize)
	}
	steps := math.Floor(quantity / lotSize)
	if steps < 1.0 {
		return 0, fmt.Errorf("%w: quantity %g insufficient for lot size %g", aggrerrors.ErrBuildTx, quantity, lotSize)
	}
	return steps * lotSize, nil
}
