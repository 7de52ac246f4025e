package models

import (
	"sort"
	"time"
)

// Dish is a named, ordered grouping of items.
type Dish struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Item is one component of a dish. ID is assigned by the backend and is
// the item's durable identity; Name is display only.
type Item struct {
	ID       string  `json:"id"`
	DishID   string  `json:"dish_id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Recipe   *string `json:"recipe,omitempty"`
}

// DishRow is a dishes row as the backend stores it.
type DishRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ItemRow is an items row as the backend stores it.
type ItemRow struct {
	ID       string  `json:"id"`
	DishID   string  `json:"dish_id"`
	Name     string  `json:"name"`
	Position int     `json:"position"`
	Recipe   *string `json:"recipe,omitempty"`
}

// Item converts the row to its mirror representation.
func (r ItemRow) Item() Item {
	return Item{ID: r.ID, DishID: r.DishID, Name: r.Name, Position: r.Position, Recipe: CloneString(r.Recipe)}
}

// Dataset is the result of a bulk fetch.
type Dataset struct {
	Dishes []DishRow `json:"dishes"`
	Items  []ItemRow `json:"items"`
}

// SortItems orders items by position, keeping the given order for ties.
func SortItems(items []ItemRow) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })
}

// Table names used in change events.
type Table string

const (
	TableDishes Table = "dishes"
	TableItems  Table = "items"
)

// EventType is the kind of row change carried by a push notification.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is a single push notification. Exactly one of the dish or
// item pairs is populated according to Table. Old may be partial: some
// transports only send the primary key on delete.
type ChangeEvent struct {
	Seq     int64     `json:"seq,omitempty"`
	Table   Table     `json:"table"`
	Type    EventType `json:"type"`
	Dish    *DishRow  `json:"dish,omitempty"`
	OldDish *DishRow  `json:"old_dish,omitempty"`
	Item    *ItemRow  `json:"item,omitempty"`
	OldItem *ItemRow  `json:"old_item,omitempty"`
	At      time.Time `json:"at,omitempty"`
}

// RowState is the device-local state of one checklist row.
type RowState struct {
	OnHand      bool   `json:"on_hand"`
	Prep        bool   `json:"prep"`
	Highlighted bool   `json:"highlighted"`
	Note        string `json:"note,omitempty"`
}

// IsZero reports whether the state carries nothing worth storing.
func (s RowState) IsZero() bool {
	return !s.OnHand && !s.Prep && !s.Highlighted && s.Note == ""
}

// Toggle is the ternary cell state: none, on hand, or prep.
type Toggle string

const (
	ToggleNone   Toggle = ""
	ToggleOnHand Toggle = "on"
	TogglePrep   Toggle = "prep"
)

// Toggle derives the ternary cell state from the two flags.
func (s RowState) Toggle() Toggle {
	switch {
	case s.OnHand:
		return ToggleOnHand
	case s.Prep:
		return TogglePrep
	default:
		return ToggleNone
	}
}

// MemberMeta mirrors backend truth for one item, keyed by composite key.
type MemberMeta struct {
	RemoteID string  `json:"id"`
	Recipe   *string `json:"recipe"`
}

// Selection is the daily list: the item keys this device is responsible for today.
type Selection struct {
	Enabled bool            `json:"enabled"`
	Keys    map[string]bool `json:"items"`
}

// Contains reports whether key is part of the selection.
func (s Selection) Contains(key string) bool {
	return s.Keys[key]
}

// ViewMode selects between the full checklist and the daily subset.
type ViewMode string

const (
	ViewFull  ViewMode = "full"
	ViewDaily ViewMode = "daily"
)

// FilterKind narrows which dishes and items a view shows.
type FilterKind string

const (
	FilterAll         FilterKind = "all"
	FilterDish        FilterKind = "dish"
	FilterHighlighted FilterKind = "highlighted"
)

// ViewState is the persisted view selector.
type ViewState struct {
	Mode   ViewMode   `json:"mode"`
	Filter FilterKind `json:"filter"`
	DishID string     `json:"dishId,omitempty"`
	Where  string     `json:"where,omitempty"`
}

// DefaultViewState is the view a fresh device starts with.
func DefaultViewState() ViewState {
	return ViewState{Mode: ViewFull, Filter: FilterAll}
}

// Normalize fills empty fields with their defaults.
func (v ViewState) Normalize() ViewState {
	if v.Mode != ViewDaily {
		v.Mode = ViewFull
	}
	switch v.Filter {
	case FilterDish, FilterHighlighted:
	default:
		v.Filter = FilterAll
	}
	if v.Filter != FilterDish {
		v.DishID = ""
	}
	return v
}

// CloneString copies a string pointer so callers cannot alias stored values.
func CloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// EqualString compares two optional strings by value.
func EqualString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// Backend drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRemote   = "remote"
	DriverMemory   = "memory"
)

// BackendConfig selects and addresses the shared backend.
type BackendConfig struct {
	Driver       string `json:"driver,omitempty"`
	DSN          string `json:"dsn,omitempty"`
	URL          string `json:"url,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"` // duration string, default "1s"
}

// Config represents the project config stored in .prep/config.json
type Config struct {
	Backend   BackendConfig  `json:"backend"`
	Namespace string         `json:"namespace,omitempty"`
	DeviceID  string         `json:"device_id,omitempty"`
	Webhook   *WebhookConfig `json:"webhook,omitempty"`
}

// WebhookConfig names an endpoint that receives change notifications
// while watch runs.
type WebhookConfig struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}
