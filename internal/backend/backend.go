// Package backend defines the contract every shared data store implements
// and the error type that wraps their failures.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/marcus/prep/internal/models"
)

// ErrNotFound is wrapped by backends when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// Backend is the shared, multi-writer store of dishes and items.
type Backend interface {
	// FetchAll returns every dish and every item, items ordered by position.
	FetchAll(ctx context.Context) (models.Dataset, error)

	InsertDish(ctx context.Context, name string) (models.DishRow, error)
	UpdateDish(ctx context.Context, id, name string) (models.DishRow, error)
	// DeleteDish removes a dish and every item it holds.
	DeleteDish(ctx context.Context, id string) error

	InsertItem(ctx context.Context, dishID, name string, position int) (models.ItemRow, error)
	// UpdateItem changes the item's name and optionally its position.
	UpdateItem(ctx context.Context, id, name string, position *int) (models.ItemRow, error)
	// MoveItem reparents an item into another dish at the given position.
	MoveItem(ctx context.Context, id, dishID string, position int) (models.ItemRow, error)
	DeleteItem(ctx context.Context, id string) error
	UpdateItemRecipe(ctx context.Context, id, text string) (models.ItemRow, error)

	// Subscribe delivers change events to onEvent until the returned
	// function is called or ctx is done. onEvent must not block.
	Subscribe(ctx context.Context, onEvent func(models.ChangeEvent)) (func(), error)

	Close() error
}

// RemoteError is returned by every backend call that fails.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *RemoteError for op. A nil err stays nil and an
// existing *RemoteError is returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// Operation names used in RemoteError and metrics.
const (
	OpFetchAll     = "fetch_all"
	OpInsertDish   = "insert_dish"
	OpUpdateDish   = "update_dish"
	OpDeleteDish   = "delete_dish"
	OpInsertItem   = "insert_item"
	OpUpdateItem   = "update_item"
	OpMoveItem     = "move_item"
	OpDeleteItem   = "delete_item"
	OpUpdateRecipe = "update_recipe"
	OpSubscribe    = "subscribe"
)
