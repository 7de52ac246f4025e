package view

import (
	"errors"
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ErrInvalidPredicate is returned when a where expression does not compile
// or does not evaluate to a boolean.
var ErrInvalidPredicate = errors.New("invalid predicate")

// Env is what a where expression can see about one row.
type Env struct {
	Name        string `expr:"name"`
	Dish        string `expr:"dish"`
	OnHand      bool   `expr:"onHand"`
	Prep        bool   `expr:"prep"`
	Highlighted bool   `expr:"highlighted"`
	Note        string `expr:"note"`
	Shared      bool   `expr:"shared"`
	HasRecipe   bool   `expr:"hasRecipe"`
	Position    int    `expr:"position"`
}

// Predicate is a compiled where expression.
type Predicate struct {
	source  string
	program *exprvm.Program
}

// Compile parses and type-checks a where expression. A blank expression
// yields a nil predicate, which matches every row.
func Compile(source string) (*Predicate, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}
	program, err := exprlang.Compile(source, exprlang.Env(Env{}), exprlang.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPredicate, source, err)
	}
	return &Predicate{source: source, program: program}, nil
}

// String returns the source expression.
func (p *Predicate) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Match evaluates the predicate for one row. A nil predicate matches.
func (p *Predicate) Match(env Env) (bool, error) {
	if p == nil {
		return true, nil
	}
	out, err := exprlang.Run(p.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", p.source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("%w: %q returned %T", ErrInvalidPredicate, p.source, out)
	}
	return ok, nil
}
