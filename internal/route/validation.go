package route

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Numi2/sui-numi/internal/aggrerrors"
	"github.com/Numi2/sui-numi/internal/quant"
	"github.com/Numi2/sui-numi/internal/venue"
)

// quantizationWarnTolerance is the fraction of the requested price/size
// quantization may move without it being worth flagging.
const quantizationWarnTolerance = 0.001

// ValidationWarnings carries non-fatal observations made while validating
// an intent, such as quantization moving price or size by more than the
// warn tolerance.
type ValidationWarnings struct {
	Messages []string
}

func (w *ValidationWarnings) add(format string, args ...interface{}) {
	w.Messages = append(w.Messages, fmt.Sprintf(format, args...))
}

// ValidateLimitOrder fetches pool parameters and checks that intent
// quantizes to a valid price and size before it is scored or compiled.
// It returns the quantized price/size, any non-fatal warnings, and an
// error wrapping aggrerrors.ErrBuildTx if the intent cannot be quantized
// into a valid order at all.
func ValidateLimitOrder(ctx context.Context, adapter venue.Adapter, intent venue.OrderIntent) (price, size float64, warnings ValidationWarnings, err error) {
	poolParams, err := adapter.PoolParams(ctx, intent.Pool)
	if err != nil {
		return 0, 0, warnings, fmt.Errorf("%w: fetch pool parameters: %v", aggrerrors.ErrBuildTx, err)
	}

	qPrice, err := quant.Price(intent.Price, poolParams.TickSize)
	if err != nil {
		return 0, 0, warnings, err
	}
	if relativeDelta(qPrice, intent.Price) > quantizationWarnTolerance {
		warnings.add("price was quantized significantly: requested %g, quantized %g", intent.Price, qPrice)
	}

	qSize, err := quant.Size(intent.Quantity, poolParams.LotSize, poolParams.MinSize)
	if err != nil {
		return 0, 0, warnings, err
	}
	if qSize < poolParams.MinSize {
		return 0, 0, warnings, fmt.Errorf("%w: quantized size %g is below minimum size %g", aggrerrors.ErrBuildTx, qSize, poolParams.MinSize)
	}
	if relativeDelta(qSize, intent.Quantity) > quantizationWarnTolerance {
		warnings.add("quantity was quantized significantly: requested %g, quantized %g", intent.Quantity, qSize)
	}

	return qPrice, qSize, warnings, nil
}

func relativeDelta(quantized, requested float64) float64 {
	if requested == 0 {
		return 0
	}
	return math.Abs(quantized-requested) / math.Abs(requested)
}

// String renders the warnings as a single semicolon-joined line, for
// logging.
func (w ValidationWarnings) String() string {
	return strings.Join(w.Messages, "; ")
}
