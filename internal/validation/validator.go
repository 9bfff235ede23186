package validation

import (
	"fmt"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-bookstore/internal/money"
)

// New returns a configured validator with custom struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// when the client sends an amount, it must match the sum of
	// (price * quantity) of items to the minor unit
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

// Lines converts cart items to priced lines; a zero quantity counts as 1.
func Lines(items []Item) []money.Line {
	lines := make([]money.Line, 0, len(items))
	for _, it := range items {
		q := it.Quantity
		if q == 0 {
			q = 1
		}
		lines = append(lines, money.Line{Price: it.Price, Quantity: q})
	}
	return lines
}

func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)
	if req.Amount == nil {
		return
	}

	sum, err := money.CartMinorUnits(Lines(req.Items))
	if err != nil {
		sl.ReportError(req.Items, "items", "Items", "amount_range", "")
		return
	}
	claimed, err := money.MinorUnits(decimal.NewFromFloat(*req.Amount))
	if err != nil {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_range", "")
		return
	}
	if sum != claimed {
		sl.ReportError(req.Amount, "amount", "Amount", "amount_match_items",
			fmt.Sprintf("items sum %s != amount %s", money.FromMinor(sum), money.FromMinor(claimed)))
	}
}
