// Package arith asks the user to solve a small arithmetic problem.
package arith

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"

	"github.com/creditpath/captchad/lib/challenge"
)

// Operators understood by the generator.
const (
	OpAdd = "+"
	OpSub = "-"
	OpMul = "×"
)

var (
	ErrNoOperators     = errors.New("arith: at least one operator is required")
	ErrUnknownOperator = errors.New("arith: unknown operator")
)

var allOperators = []string{OpAdd, OpSub, OpMul}

func init() {
	challenge.Register("arith", Factory{})
}

// Config selects which operators questions may use. Both "×" and "x" name
// multiplication.
type Config struct {
	Operators []string `json:"operators,omitempty"`
}

func (c Config) normalized() ([]string, error) {
	if c.Operators == nil {
		return allOperators, nil
	}

	if len(c.Operators) == 0 {
		return nil, ErrNoOperators
	}

	var (
		result []string
		errs   []error
	)

	for _, op := range c.Operators {
		switch op {
		case "x", "*":
			op = OpMul
		}

		if !slices.Contains(allOperators, op) {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownOperator, op))
			continue
		}

		if !slices.Contains(result, op) {
			result = append(result, op)
		}
	}

	if len(errs) != 0 {
		return nil, errors.Join(errs...)
	}

	return result, nil
}

func parse(data json.RawMessage) ([]string, error) {
	var c Config
	if len(data) != 0 {
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %w", challenge.ErrBadConfig, err)
		}
	}

	ops, err := c.normalized()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", challenge.ErrBadConfig, err)
	}

	return ops, nil
}

type Factory struct{}

func (Factory) Build(data json.RawMessage) (challenge.Generator, error) {
	ops, err := parse(data)
	if err != nil {
		return nil, err
	}

	return &Generator{operators: ops}, nil
}

func (Factory) Valid(data json.RawMessage) error {
	_, err := parse(data)
	return err
}

// Generator produces questions like "7 + 3 = ?" whose answers are always
// positive integers.
type Generator struct {
	operators []string
}

// between returns a uniformly random integer in [lo, hi].
func between(lo, hi int) int {
	return lo + rand.IntN(hi-lo+1)
}

// Question builds the operands and answer for op.
func Question(op string) (a, b, answer int) {
	switch op {
	case OpSub:
		a = between(10, 29)
		b = between(1, a-1)
		return a, b, a - b
	case OpMul:
		a, b = between(1, 10), between(1, 10)
		return a, b, a * b
	default:
		a, b = between(1, 20), between(1, 20)
		return a, b, a + b
	}
}

func (g *Generator) Generate(ctx context.Context) (*challenge.Puzzle, error) {
	op := g.operators[rand.IntN(len(g.operators))]
	a, b, answer := Question(op)

	return &challenge.Puzzle{
		Presentation: fmt.Sprintf("%d %s %d = ?", a, op, b),
		Format:       challenge.FormatPlain,
		Solution:     strconv.Itoa(answer),
	}, nil
}
