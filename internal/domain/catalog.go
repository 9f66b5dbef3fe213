package domain

import "errors"

var ErrProductNotFound = errors.New("product not found")

type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    Money  `json:"price"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}
