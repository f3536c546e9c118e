package models

// StatusCount is one row of the daily report: how many orders are in a
// status and what they add up to.
type StatusCount struct {
	Status OrderStatus `db:"status" json:"status"`
	Count  int         `db:"count" json:"count"`
	Total  float64     `db:"total" json:"total"`
}
