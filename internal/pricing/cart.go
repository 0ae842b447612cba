package pricing

import (
	"errors"
	"fmt"

	"github.com/noah-isme/bizledger/internal/money"
)

// ErrLineNotFound is returned when an edit targets a position outside the cart.
var ErrLineNotFound = errors.New("pricing: cart line not found")

// Cart is an open, not yet finalized set of lines. It is a value: every edit
// returns a new Cart and leaves the receiver untouched.
type Cart struct {
	lines []Line
}

// NewCart builds a cart holding a copy of lines.
func NewCart(lines ...Line) Cart {
	return Cart{lines: append([]Line(nil), lines...)}
}

// Lines returns a copy of the cart lines.
func (c Cart) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

// Len returns the number of lines.
func (c Cart) Len() int { return len(c.lines) }

// Add appends a line.
func (c Cart) Add(l Line) Cart {
	next := make([]Line, 0, len(c.lines)+1)
	next = append(next, c.lines...)
	return Cart{lines: append(next, l)}
}

// Update replaces the line at index i with fn applied to it.
func (c Cart) Update(i int, fn func(Line) Line) (Cart, error) {
	if i < 0 || i >= len(c.lines) {
		return c, fmt.Errorf("%w: %d", ErrLineNotFound, i)
	}
	next := c.Lines()
	next[i] = fn(next[i])
	return Cart{lines: next}, nil
}

// SetQuantity changes the quantity of line i.
func (c Cart) SetQuantity(i, qty int) (Cart, error) {
	return c.Update(i, func(l Line) Line {
		l.Quantity = qty
		return l
	})
}

// SetDiscount changes the discount of line i.
func (c Cart) SetDiscount(i int, discount money.Money) (Cart, error) {
	return c.Update(i, func(l Line) Line {
		l.Discount = discount
		return l
	})
}

// Remove drops line i.
func (c Cart) Remove(i int) (Cart, error) {
	if i < 0 || i >= len(c.lines) {
		return c, fmt.Errorf("%w: %d", ErrLineNotFound, i)
	}
	next := make([]Line, 0, len(c.lines)-1)
	next = append(next, c.lines[:i]...)
	next = append(next, c.lines[i+1:]...)
	return Cart{lines: next}, nil
}

// Totals prices and aggregates the cart.
func (c Cart) Totals() (Summary, error) {
	return Compute(c.lines)
}
