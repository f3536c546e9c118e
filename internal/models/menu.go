package models

// MenuItem is one dish on the menu. Line items reference menu items by id;
// the name and unit price are copied onto the order at creation so later
// menu edits do not rewrite history.
type MenuItem struct {
	ID       int64   `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Category string  `db:"category" json:"category"`
	Price    float64 `db:"price" json:"price"`
}
