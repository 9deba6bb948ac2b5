package dsl

import "fmt"

// SolverProgram is the compiler's opaque output: a type-checked AST plus
// the inferred type of every free variable. Concrete solver bindings (an
// external SMT library) consume this; the reference solver shipped here
// walks it directly.
type SolverProgram struct {
	Root      Node
	VarTypes  map[string]ValueType
	Asserts   []Node
}

// Compile type-checks ast and produces a SolverProgram. It is a pure
// function: no I/O, no network, no filesystem, no host evaluator — only
// structural recursion over the AST.
func Compile(ast Node) (*SolverProgram, error) {
	c := &compiler{varTypes: make(map[string]ValueType)}
	typ, err := c.infer(ast)
	if err != nil {
		return nil, err
	}

	asserts := c.asserts
	if len(asserts) == 0 {
		if typ != TypeBool {
			return nil, &CompileError{Reason: fmt.Sprintf("top-level form must be boolean, got %s", typ), Offset: ast.Offset()}
		}
		asserts = []Node{ast}
	}

	return &SolverProgram{Root: ast, VarTypes: c.varTypes, Asserts: asserts}, nil
}

type compiler struct {
	varTypes map[string]ValueType
	asserts  []Node
}

// infer performs bottom-up type inference, rejecting any mixed typing the
// way the grammar requires (e.g. passing a boolean to PLUS).
func (c *compiler) infer(n Node) (ValueType, error) {
	switch v := n.(type) {
	case NumberAtom:
		if v.IsInt {
			return TypeInt, nil
		}
		return TypeReal, nil

	case BoolAtom:
		return TypeBool, nil

	case StringAtom:
		return TypeUnknown, &CompileError{Reason: "string literals are not valid in any whitelisted position", Offset: v.Off}

	case IdentAtom:
		if existing, ok := c.varTypes[v.Name]; ok {
			return existing, nil
		}
		// First use without a forcing context defaults to unknown; a
		// later forcing operator will assign it a concrete type. A
		// variable no operator constrains stays unknown, and the solver
		// searches it over its integer domain.
		c.varTypes[v.Name] = TypeUnknown
		return TypeUnknown, nil

	case Form:
		return c.inferForm(v)

	default:
		return TypeUnknown, &CompileError{Reason: "unrecognized AST node", Offset: n.Offset()}
	}
}

func (c *compiler) inferForm(f Form) (ValueType, error) {
	switch f.Op {
	case "PROGRAM":
		for _, arg := range f.Args {
			stmtForm, ok := arg.(Form)
			if !ok || stmtForm.Op != "ASSERT" {
				return TypeUnknown, &CompileError{Reason: "PROGRAM body must consist of ASSERT statements", Offset: arg.Offset()}
			}
			if _, err := c.inferForm(stmtForm); err != nil {
				return TypeUnknown, err
			}
		}
		return TypeUnknown, nil

	case "ASSERT":
		if len(f.Args) != 1 {
			return TypeUnknown, &CompileError{Reason: "ASSERT takes exactly one argument", Offset: f.Off}
		}
		typ, err := c.forceType(f.Args[0], TypeBool)
		if err != nil {
			return TypeUnknown, err
		}
		c.asserts = append(c.asserts, f.Args[0])
		return typ, nil

	case "AND", "OR":
		if len(f.Args) < 2 {
			return TypeUnknown, &CompileError{Reason: fmt.Sprintf("%s requires at least two arguments", f.Op), Offset: f.Off}
		}
		for _, arg := range f.Args {
			if _, err := c.forceType(arg, TypeBool); err != nil {
				return TypeUnknown, err
			}
		}
		return TypeBool, nil

	case "NOT":
		if len(f.Args) != 1 {
			return TypeUnknown, &CompileError{Reason: "NOT takes exactly one argument", Offset: f.Off}
		}
		if _, err := c.forceType(f.Args[0], TypeBool); err != nil {
			return TypeUnknown, err
		}
		return TypeBool, nil

	case "IMPLIES", "IFF":
		if len(f.Args) != 2 {
			return TypeUnknown, &CompileError{Reason: fmt.Sprintf("%s requires exactly two arguments", f.Op), Offset: f.Off}
		}
		for _, arg := range f.Args {
			if _, err := c.forceType(arg, TypeBool); err != nil {
				return TypeUnknown, err
			}
		}
		return TypeBool, nil

	case "PLUS", "MINUS", "MUL", "DIV", "MOD", "POW":
		if len(f.Args) < 2 {
			return TypeUnknown, &CompileError{Reason: fmt.Sprintf("%s requires at least two arguments", f.Op), Offset: f.Off}
		}
		return c.inferArithmetic(f)

	case "NEG":
		if len(f.Args) != 1 {
			return TypeUnknown, &CompileError{Reason: "NEG takes exactly one argument", Offset: f.Off}
		}
		return c.inferArithmetic(f)

	case "EQ", "NEQ":
		if len(f.Args) != 2 {
			return TypeUnknown, &CompileError{Reason: fmt.Sprintf("%s requires exactly two arguments", f.Op), Offset: f.Off}
		}
		lt, err := c.infer(f.Args[0])
		if err != nil {
			return TypeUnknown, err
		}
		if lt == TypeUnknown {
			// An unconstrained left side takes the right side's type.
			rt, err := c.infer(f.Args[1])
			if err != nil {
				return TypeUnknown, err
			}
			if _, err := c.forceType(f.Args[0], rt); err != nil {
				return TypeUnknown, err
			}
			return TypeBool, nil
		}
		if _, err := c.forceType(f.Args[1], lt); err != nil {
			return TypeUnknown, err
		}
		return TypeBool, nil

	case "LT", "LE", "GT", "GE":
		if len(f.Args) != 2 {
			return TypeUnknown, &CompileError{Reason: fmt.Sprintf("%s requires exactly two arguments", f.Op), Offset: f.Off}
		}
		if _, err := c.inferArithmetic(f); err != nil {
			return TypeUnknown, err
		}
		return TypeBool, nil

	case "ITE":
		if len(f.Args) != 3 {
			return TypeUnknown, &CompileError{Reason: "ITE requires exactly three arguments", Offset: f.Off}
		}
		if _, err := c.forceType(f.Args[0], TypeBool); err != nil {
			return TypeUnknown, err
		}
		thenType, err := c.infer(f.Args[1])
		if err != nil {
			return TypeUnknown, err
		}
		if _, err := c.forceType(f.Args[2], thenType); err != nil {
			return TypeUnknown, err
		}
		return thenType, nil

	case "FORALL", "EXISTS":
		if len(f.Args) != 2 {
			return TypeUnknown, &CompileError{Reason: fmt.Sprintf("%s requires a bound variable list and a body", f.Op), Offset: f.Off}
		}
		bvl, ok := f.Args[0].(boundVarList)
		if !ok {
			return TypeUnknown, &CompileError{Reason: "malformed bound variable list", Offset: f.Off}
		}
		for _, v := range bvl.Vars {
			ident := v.(IdentAtom)
			c.varTypes[ident.Name] = TypeInt
		}
		if _, err := c.forceType(f.Args[1], TypeBool); err != nil {
			return TypeUnknown, err
		}
		return TypeBool, nil

	default:
		return TypeUnknown, &CompileError{Reason: fmt.Sprintf("operator %q is not whitelisted", f.Op), Offset: f.Off}
	}
}

// inferArithmetic type-checks an arithmetic form's arguments, forcing every
// argument to a numeric type and widening to real if any argument is real.
func (c *compiler) inferArithmetic(f Form) (ValueType, error) {
	result := TypeInt
	for _, arg := range f.Args {
		typ, err := c.infer(arg)
		if err != nil {
			return TypeUnknown, err
		}
		switch typ {
		case TypeInt:
			// compatible with either int or real result
		case TypeReal:
			result = TypeReal
		case TypeUnknown:
			if ident, ok := arg.(IdentAtom); ok {
				c.varTypes[ident.Name] = TypeInt
			}
		default:
			return TypeUnknown, &CompileError{
				Reason: fmt.Sprintf("%s requires numeric arguments, got %s", f.Op, typ),
				Offset: arg.Offset(),
			}
		}
	}
	return result, nil
}

// forceType requires n to have type want, assigning want to an
// as-yet-unconstrained identifier on first use, and rejecting any
// incompatible combination (the "mixed typing is rejected" invariant).
func (c *compiler) forceType(n Node, want ValueType) (ValueType, error) {
	if ident, ok := n.(IdentAtom); ok {
		existing, seen := c.varTypes[ident.Name]
		if !seen || existing == TypeUnknown {
			c.varTypes[ident.Name] = want
			return want, nil
		}
		if existing != want && !(numericType(existing) && numericType(want)) {
			return TypeUnknown, &CompileError{
				Reason: fmt.Sprintf("variable %q used as both %s and %s", ident.Name, existing, want),
				Offset: ident.Off,
			}
		}
		return existing, nil
	}

	typ, err := c.infer(n)
	if err != nil {
		return TypeUnknown, err
	}
	if typ != want && !(numericType(typ) && numericType(want)) {
		return TypeUnknown, &CompileError{
			Reason: fmt.Sprintf("expected %s, got %s", want, typ),
			Offset: n.Offset(),
		}
	}
	return typ, nil
}

func numericType(t ValueType) bool {
	return t == TypeInt || t == TypeReal
}
