package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/marcus/prep/internal/models"
)

// enumValue is a string flag restricted to a fixed set of choices.
type enumValue struct {
	value   string
	choices []string
	kind    string
}

var _ pflag.Value = (*enumValue)(nil)

func newEnum(kind, def string, choices ...string) *enumValue {
	return &enumValue{value: def, choices: choices, kind: kind}
}

func (e *enumValue) String() string { return e.value }

func (e *enumValue) Set(s string) error {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range e.choices {
		if s == c {
			e.value = s
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(e.choices, ", "))
}

func (e *enumValue) Type() string { return e.kind }

func newModeFlag() *enumValue {
	return newEnum("mode", "", string(models.ViewFull), string(models.ViewDaily))
}

func newFilterFlag() *enumValue {
	return newEnum("filter", "", string(models.FilterAll), string(models.FilterDish), string(models.FilterHighlighted))
}

func newDriverFlag() *enumValue {
	return newEnum("driver", "", models.DriverSQLite, models.DriverPostgres, models.DriverRemote, models.DriverMemory)
}

// toggleFlag is the ternary cell state for flags such as --set.
type toggleFlag struct {
	value models.Toggle
	set   bool
}

var _ pflag.Value = (*toggleFlag)(nil)

func (t *toggleFlag) String() string {
	if t.value == models.ToggleNone {
		return "none"
	}
	return string(t.value)
}

func (t *toggleFlag) Set(s string) error {
	switch strings.ToLower(s) {
	case "none", "off", "":
		t.value = models.ToggleNone
	case "on", "onhand", "on-hand":
		t.value = models.ToggleOnHand
	case "prep":
		t.value = models.TogglePrep
	default:
		return fmt.Errorf("must be one of none, on, prep")
	}
	t.set = true
	return nil
}

func (t *toggleFlag) Type() string { return "state" }
