package checkout

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rng-salon/salon-pos/internal/catalog"
	"github.com/rng-salon/salon-pos/internal/checkout/tax"
)

// Cart holds line items in the order they were added.
type Cart struct {
	Items []LineItem `json:"items"`
}

func (c *Cart) index(id uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) indexOf(kind catalog.Kind, catalogID uuid.UUID) int {
	for i := range c.Items {
		if c.Items[i].Kind == kind && c.Items[i].CatalogID == catalogID {
			return i
		}
	}
	return -1
}

// Get returns the item with id.
func (c *Cart) Get(id uuid.UUID) (LineItem, bool) {
	if i := c.index(id); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}

// Empty reports whether the cart has no items.
func (c *Cart) Empty() bool {
	return len(c.Items) == 0
}

func stockError(item LineItem, want int) error {
	if item.StockQuantity == nil {
		return nil
	}
	if *item.StockQuantity <= 0 {
		return &EligibilityError{ItemID: item.ID, Reason: fmt.Sprintf("%s is out of stock", item.Name)}
	}
	if want > *item.StockQuantity {
		return &EligibilityError{ItemID: item.ID, Reason: fmt.Sprintf("only %d units of %s in stock", *item.StockQuantity, item.Name)}
	}
	return nil
}

// Add puts qty units of entry into the cart. Adding an entry already in the
// cart increases its quantity instead of creating a second line.
func (c *Cart) Add(entry catalog.Entry, qty int) (LineItem, error) {
	if qty <= 0 {
		return LineItem{}, ErrInvalidQuantity
	}
	if i := c.indexOf(entry.Kind, entry.ID); i >= 0 {
		item := c.Items[i]
		item.StockQuantity = entry.StockQuantity
		want := item.Quantity + qty
		if err := stockError(item, want); err != nil {
			return LineItem{}, err
		}
		item.Quantity = want
		c.Items[i] = item
		return item, nil
	}
	item := newLineItem(entry, qty)
	if err := stockError(item, qty); err != nil {
		return LineItem{}, err
	}
	c.Items = append(c.Items, item)
	return item, nil
}

// SetQuantity changes an item's quantity. Zero or less removes the item.
func (c *Cart) SetQuantity(id uuid.UUID, qty int) error {
	i := c.index(id)
	if i < 0 {
		return ErrItemNotFound
	}
	if qty <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
		return nil
	}
	if qty > c.Items[i].Quantity {
		if err := stockError(c.Items[i], qty); err != nil {
			return err
		}
	}
	c.Items[i].Quantity = qty
	return nil
}

// SetDiscount sets the GST-inclusive discount, clamped to the line's
// GST-inclusive value so the largest discount zeroes the line.
func (c *Cart) SetDiscount(id uuid.UUID, amount decimal.Decimal) (LineItem, error) {
	i := c.index(id)
	if i < 0 {
		return LineItem{}, ErrItemNotFound
	}
	amount = tax.Round(maxZero(amount))
	if limit := c.Items[i].MaxDiscount(); amount.GreaterThan(limit) {
		amount = limit
	}
	c.Items[i].Discount = amount
	return c.Items[i], nil
}

// SetPayVia routes a service line through membership balance or back.
func (c *Cart) SetPayVia(id uuid.UUID, via PayVia) error {
	i := c.index(id)
	if i < 0 {
		return ErrItemNotFound
	}
	switch via {
	case PayStandard:
	case PayMembershipBalance:
		if c.Items[i].Kind != catalog.KindService {
			return &EligibilityError{ItemID: id, Reason: fmt.Sprintf("%s cannot be paid from membership balance", c.Items[i].Name)}
		}
	default:
		return fmt.Errorf("checkout: unknown pay via %q", via)
	}
	c.Items[i].PayVia = via
	return nil
}

// Remove deletes an item.
func (c *Cart) Remove(id uuid.UUID) error {
	i := c.index(id)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = nil
}
