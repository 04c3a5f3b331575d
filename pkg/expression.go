package sigproc

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

// Evaluate computes an arithmetic expression over numeric literals and unit
// symbols, e.g. "10*cm" or "1.114*mm/us". Only + - * /, parentheses and
// unary signs are accepted; anything else is a ConfigError.
func Evaluate(expr string) (float64, error) {
	if strings.TrimSpace(expr) == "" {
		return 0, &ConfigError{Expr: expr, Err: errors.New("empty expression")}
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, &ConfigError{Expr: expr, Err: err}
	}
	value, err := evalNode(node)
	if err != nil {
		return 0, &ConfigError{Expr: expr, Err: err}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &ConfigError{Expr: expr, Err: errors.New("expression is not finite")}
	}
	return value, nil
}

// MustEvaluate is Evaluate for constant expressions known at compile time.
func MustEvaluate(expr string) float64 {
	v, err := Evaluate(expr)
	if err != nil {
		panic(err)
	}
	return v
}

func evalNode(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		if n.Kind != token.INT && n.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal %s", n.Value)
		}
		return strconv.ParseFloat(n.Value, 64)
	case *ast.Ident:
		v, ok := unitTable[n.Name]
		if !ok {
			return 0, fmt.Errorf("undefined symbol %q", n.Name)
		}
		return v, nil
	case *ast.ParenExpr:
		return evalNode(n.X)
	case *ast.UnaryExpr:
		x, err := evalNode(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return -x, nil
		}
		return 0, fmt.Errorf("unsupported unary operator %s", n.Op)
	case *ast.BinaryExpr:
		x, err := evalNode(n.X)
		if err != nil {
			return 0, err
		}
		y, err := evalNode(n.Y)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x + y, nil
		case token.SUB:
			return x - y, nil
		case token.MUL:
			return x * y, nil
		case token.QUO:
			if y == 0 {
				return 0, errors.New("division by zero")
			}
			return x / y, nil
		}
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	}
	return 0, fmt.Errorf("unsupported expression %T", node)
}
