package dto

import "github.com/hyperterse/hypercluster/core/domain"

const ResultOK = "ok"

type CreateProductResponse struct {
	Result     string         `json:"result"`
	NewProduct domain.Product `json:"newProduct"`
}

type UpdateProductResponse struct {
	Result        string         `json:"result"`
	UpdateProduct domain.Product `json:"updateProduct"`
}

type DeleteProductResponse struct {
	Result    string `json:"result"`
	DeletedID string `json:"deletedId"`
}
