package dsl

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// Verdict is the solver's outcome for a SolverProgram.
type Verdict string

const (
	VerdictSAT     Verdict = "SAT"
	VerdictUNSAT   Verdict = "UNSAT"
	VerdictUnknown Verdict = "UNKNOWN"
)

// Result is what a Solver returns: the verdict plus, for SAT, a
// satisfying model.
type Result struct {
	Verdict Verdict
	Model   map[string]interface{}
}

// Solver runs a compiled SolverProgram. Concrete SMT bindings (Z3 and
// similar) are external collaborators out of scope here; ReferenceSolver is
// the bounded fallback used by the gateway's own tests and as the default
// when no external binding is configured.
type Solver interface {
	Solve(ctx context.Context, prog *SolverProgram, timeout time.Duration) (Result, error)
}

// domainBound is the symmetric integer range the reference solver searches;
// large enough for the arithmetic/logic fixtures the engine is expected to
// decide, small enough to terminate within the default 5s solver timeout.
const domainBound = 64

// ReferenceSolver is a bounded backtracking search over small integer and
// boolean domains — sufficient to decide the quantifier-free fragment (and
// bounded quantifiers) the compiler emits.
type ReferenceSolver struct{}

// NewReferenceSolver constructs the bundled reference solver.
func NewReferenceSolver() *ReferenceSolver {
	return &ReferenceSolver{}
}

// Solve searches assignments to prog's free variables for one that
// satisfies every assertion, respecting ctx cancellation and timeout.
func (s *ReferenceSolver) Solve(ctx context.Context, prog *SolverProgram, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	vars := make([]string, 0, len(prog.VarTypes))
	for name := range prog.VarTypes {
		vars = append(vars, name)
	}
	sort.Strings(vars)

	assignment := make(map[string]interface{}, len(vars))
	found, err := backtrack(ctx, prog, vars, 0, assignment)
	if err != nil {
		if ctx.Err() != nil {
			return Result{Verdict: VerdictUnknown}, nil
		}
		return Result{}, err
	}
	if found {
		model := make(map[string]interface{}, len(assignment))
		for k, v := range assignment {
			model[k] = v
		}
		return Result{Verdict: VerdictSAT, Model: model}, nil
	}
	return Result{Verdict: VerdictUNSAT}, nil
}

func backtrack(ctx context.Context, prog *SolverProgram, vars []string, idx int, assignment map[string]interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if idx == len(vars) {
		ok, err := satisfiesAll(prog.Asserts, assignment)
		if err != nil {
			return false, err
		}
		return ok, nil
	}

	name := vars[idx]
	typ := prog.VarTypes[name]

	var domain []interface{}
	switch typ {
	case TypeBool:
		domain = []interface{}{true, false}
	default: // TypeInt, TypeReal, or unconstrained — search a bounded integer range
		domain = make([]interface{}, 0, 2*domainBound+1)
		for v := -domainBound; v <= domainBound; v++ {
			domain = append(domain, float64(v))
		}
	}

	for _, value := range domain {
		assignment[name] = value
		ok, err := backtrack(ctx, prog, vars, idx+1, assignment)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	delete(assignment, name)
	return false, nil
}

func satisfiesAll(asserts []Node, assignment map[string]interface{}) (bool, error) {
	for _, a := range asserts {
		v, err := eval(a, assignment)
		if err != nil {
			return false, err
		}
		b, ok := v.(bool)
		if !ok {
			return false, fmt.Errorf("assertion did not evaluate to a boolean")
		}
		if !b {
			return false, nil
		}
	}
	return true, nil
}

// eval interprets a type-checked node under assignment. It never touches
// the network, filesystem, or any host evaluator — pure arithmetic and
// boolean logic over the fixed operator whitelist.
func eval(n Node, assignment map[string]interface{}) (interface{}, error) {
	switch v := n.(type) {
	case NumberAtom:
		return v.Value, nil
	case BoolAtom:
		return v.Value, nil
	case IdentAtom:
		val, ok := assignment[v.Name]
		if !ok {
			return nil, fmt.Errorf("unassigned variable %q", v.Name)
		}
		return val, nil
	case Form:
		return evalForm(v, assignment)
	default:
		return nil, fmt.Errorf("unevaluable node")
	}
}

func evalForm(f Form, assignment map[string]interface{}) (interface{}, error) {
	switch f.Op {
	case "AND":
		for _, arg := range f.Args {
			b, err := evalBool(arg, assignment)
			if err != nil {
				return nil, err
			}
			if !b {
				return false, nil
			}
		}
		return true, nil
	case "OR":
		for _, arg := range f.Args {
			b, err := evalBool(arg, assignment)
			if err != nil {
				return nil, err
			}
			if b {
				return true, nil
			}
		}
		return false, nil
	case "NOT":
		b, err := evalBool(f.Args[0], assignment)
		if err != nil {
			return nil, err
		}
		return !b, nil
	case "IMPLIES":
		p, err := evalBool(f.Args[0], assignment)
		if err != nil {
			return nil, err
		}
		q, err := evalBool(f.Args[1], assignment)
		if err != nil {
			return nil, err
		}
		return !p || q, nil
	case "IFF":
		p, err := evalBool(f.Args[0], assignment)
		if err != nil {
			return nil, err
		}
		q, err := evalBool(f.Args[1], assignment)
		if err != nil {
			return nil, err
		}
		return p == q, nil
	case "PLUS":
		return reduceNumeric(f.Args, assignment, 0, func(a, b float64) float64 { return a + b })
	case "MINUS":
		return reduceNumericLeft(f.Args, assignment, func(a, b float64) float64 { return a - b })
	case "MUL":
		return reduceNumeric(f.Args, assignment, 1, func(a, b float64) float64 { return a * b })
	case "DIV":
		return reduceNumericLeft(f.Args, assignment, func(a, b float64) float64 {
			if b == 0 {
				return math.Inf(1)
			}
			return a / b
		})
	case "MOD":
		return reduceNumericLeft(f.Args, assignment, func(a, b float64) float64 {
			if b == 0 {
				return math.NaN()
			}
			return math.Mod(a, b)
		})
	case "POW":
		return reduceNumericLeft(f.Args, assignment, math.Pow)
	case "NEG":
		n, err := evalNum(f.Args[0], assignment)
		if err != nil {
			return nil, err
		}
		return -n, nil
	case "EQ":
		return evalCompare(f.Args, assignment, func(a, b float64) bool { return a == b })
	case "NEQ":
		return evalCompare(f.Args, assignment, func(a, b float64) bool { return a != b })
	case "LT":
		return evalCompare(f.Args, assignment, func(a, b float64) bool { return a < b })
	case "LE":
		return evalCompare(f.Args, assignment, func(a, b float64) bool { return a <= b })
	case "GT":
		return evalCompare(f.Args, assignment, func(a, b float64) bool { return a > b })
	case "GE":
		return evalCompare(f.Args, assignment, func(a, b float64) bool { return a >= b })
	case "ITE":
		cond, err := evalBool(f.Args[0], assignment)
		if err != nil {
			return nil, err
		}
		if cond {
			return eval(f.Args[1], assignment)
		}
		return eval(f.Args[2], assignment)
	case "FORALL", "EXISTS":
		return evalQuantifier(f, assignment)
	default:
		return nil, fmt.Errorf("operator %q cannot be evaluated", f.Op)
	}
}

func evalQuantifier(f Form, assignment map[string]interface{}) (interface{}, error) {
	bvl := f.Args[0].(boundVarList)
	body := f.Args[1]

	names := make([]string, len(bvl.Vars))
	for i, v := range bvl.Vars {
		names[i] = v.(IdentAtom).Name
	}

	universal := f.Op == "FORALL"
	var walk func(idx int) (bool, error)
	walk = func(idx int) (bool, error) {
		if idx == len(names) {
			b, err := evalBool(body, assignment)
			if err != nil {
				return false, err
			}
			return b, nil
		}
		name := names[idx]
		for v := -domainBound; v <= domainBound; v++ {
			assignment[name] = float64(v)
			ok, err := walk(idx + 1)
			if err != nil {
				delete(assignment, name)
				return false, err
			}
			if universal && !ok {
				delete(assignment, name)
				return false, nil
			}
			if !universal && ok {
				delete(assignment, name)
				return true, nil
			}
		}
		delete(assignment, name)
		return universal, nil
	}

	return walk(0)
}

func evalBool(n Node, assignment map[string]interface{}) (bool, error) {
	v, err := eval(n, assignment)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
	return b, nil
}

func evalNum(n Node, assignment map[string]interface{}) (float64, error) {
	v, err := eval(n, assignment)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("expected numeric, got %T", v)
	}
	return f, nil
}

func reduceNumeric(args []Node, assignment map[string]interface{}, identity float64, op func(a, b float64) float64) (interface{}, error) {
	acc := identity
	for _, arg := range args {
		n, err := evalNum(arg, assignment)
		if err != nil {
			return nil, err
		}
		acc = op(acc, n)
	}
	return acc, nil
}

func reduceNumericLeft(args []Node, assignment map[string]interface{}, op func(a, b float64) float64) (interface{}, error) {
	if len(args) == 1 {
		return evalNum(args[0], assignment)
	}
	acc, err := evalNum(args[0], assignment)
	if err != nil {
		return nil, err
	}
	for _, arg := range args[1:] {
		n, err := evalNum(arg, assignment)
		if err != nil {
			return nil, err
		}
		acc = op(acc, n)
	}
	return acc, nil
}

func evalCompare(args []Node, assignment map[string]interface{}, cmp func(a, b float64) bool) (interface{}, error) {
	a, err := evalNum(args[0], assignment)
	if err != nil {
		return nil, err
	}
	b, err := evalNum(args[1], assignment)
	if err != nil {
		return nil, err
	}
	return cmp(a, b), nil
}
