package models

import "fmt"

// ItemKey is the natural key of the dim_item dimension. The same item
// name may legitimately appear under different categories as distinct
// entities, so both parts participate in the key.
type ItemKey struct {
	Name     string
	Category string
}

func (k ItemKey) String() string {
	return fmt.Sprintf("%s/%s", k.Name, k.Category)
}

// Item is a row of the dim_item dimension. Size, color and season are
// optional; empty strings are persisted as NULL.
type Item struct {
	Name     string
	Category string
	Size     string
	Color    string
	Season   string
}

// Key returns the item's natural key.
func (i Item) Key() ItemKey {
	return ItemKey{Name: i.Name, Category: i.Category}
}

// AttributesEqual reports whether two items with the same natural key
// carry identical attribute values.
func (i Item) AttributesEqual(other Item) bool {
	return i.Size == other.Size &&
		i.Color == other.Color &&
		i.Season == other.Season
}
