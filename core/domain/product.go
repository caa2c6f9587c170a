package domain

import "errors"

// Product is a catalog entry.
type Product struct {
	ID        string  `json:"id" bson:"_id" db:"id"`
	Title     string  `json:"title" bson:"title" db:"title"`
	Price     float64 `json:"price" bson:"price" db:"price"`
	Thumbnail string  `json:"thumbnail" bson:"thumbnail" db:"thumbnail"`
}

// ProductInput is the writable part of a Product, as accepted by create and
// update.
type ProductInput struct {
	Title     string  `json:"title" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Thumbnail string  `json:"thumbnail"`
}

// ErrProductNotFound is returned by stores when no product has the given id.
var ErrProductNotFound = errors.New("product not found")
