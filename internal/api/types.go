package api

import "github.com/marcus/prep/internal/models"

// DatasetResponse is the body of GET /v1/dataset. LastSeq is the change
// log position read before the snapshot; replaying from it may repeat
// changes already reflected in the snapshot but never skips one.
type DatasetResponse struct {
	models.Dataset
	LastSeq int64 `json:"last_seq"`
}

// CreateDishRequest is the body of POST /v1/dishes.
type CreateDishRequest struct {
	Name string `json:"name"`
}

// UpdateDishRequest is the body of PATCH /v1/dishes/{id}.
type UpdateDishRequest struct {
	Name string `json:"name"`
}

// CreateItemRequest is the body of POST /v1/items.
type CreateItemRequest struct {
	DishID   string `json:"dish_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// UpdateItemRequest is the body of PATCH /v1/items/{id}. A nil Position
// leaves the item where it is.
type UpdateItemRequest struct {
	Name     string `json:"name"`
	Position *int   `json:"position,omitempty"`
}

// MoveItemRequest is the body of POST /v1/items/{id}/move.
type MoveItemRequest struct {
	DishID   string `json:"dish_id"`
	Position int    `json:"position"`
}

// SetRecipeRequest is the body of PUT /v1/items/{id}/recipe.
type SetRecipeRequest struct {
	Recipe string `json:"recipe"`
}

// ChangesResponse is the body of GET /v1/changes.
type ChangesResponse struct {
	Changes []models.ChangeEvent `json:"changes"`
	LastSeq int64                `json:"last_seq"`
}
