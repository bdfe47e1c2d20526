package processor

import (
	"fmt"

	"bothan/internal/decimal"
	"bothan/internal/registry"
)

// ErrOutOfBound marks a tick conversion result outside [1, 524287].
type ErrOutOfBound struct {
	Tick decimal.Decimal
}

func (e *ErrOutOfBound) Error() string {
	return fmt.Sprintf("processor: tick %s out of bound [1, 524287]", e.Tick)
}

var (
	tickBias       = decimal.NewFromInt(262144)
	tickLowerBound = decimal.NewFromInt(1)
	tickUpperBound = decimal.NewFromInt(524287)
	tickLogBase    decimal.Decimal
)

func init() {
	d, err := decimal.NewFromString("1.0001")
	if err != nil {
		panic("processor: invalid tick log base literal: " + err.Error())
	}
	tickLogBase = d
}

// RunPostProcessors folds post-processors left to right over the processor
// result. The spec resolves the source's ambiguity between "stop on first
// error" and "fold through" in favor of stopping on first error.
func RunPostProcessors(posts []registry.PostProcessor, value decimal.Decimal) (decimal.Decimal, error) {
	result := value
	for _, p := range posts {
		var err error
		switch p.Function {
		case registry.PostProcessorTickConvertor:
			result, err = TickConvertor(result)
		default:
			err = fmt.Errorf("processor: unknown post_processor function %q", p.Function)
		}
		if err != nil {
			return decimal.Decimal{}, err
		}
	}
	return result, nil
}

// TickConvertor maps d to log10(d)/log10(1.0001) + 262144, rejecting
// results outside [1, 524287].
func TickConvertor(d decimal.Decimal) (decimal.Decimal, error) {
	logD, err := d.Log10()
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("processor: tick_convertor: %w", err)
	}
	logBase, err := tickLogBase.Log10()
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("processor: tick_convertor: %w", err)
	}
	ratio, err := logD.Div(logBase, decimal.ToNearest)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("processor: tick_convertor: %w", err)
	}
	tick := ratio.Add(tickBias)

	if tick.Cmp(tickLowerBound) < 0 || tick.Cmp(tickUpperBound) > 0 {
		return decimal.Decimal{}, &ErrOutOfBound{Tick: tick}
	}
	return tick, nil
}
