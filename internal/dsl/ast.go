package dsl

// Node is any QWED-DSL AST node: an Atom or a Form.
type Node interface {
	node()
	Offset() int
}

// NumberAtom is a numeric literal; IsInt distinguishes integer from real
// literals for the compiler's type inference.
type NumberAtom struct {
	Value  float64
	IsInt  bool
	Off    int
}

func (NumberAtom) node()          {}
func (n NumberAtom) Offset() int { return n.Off }

// IdentAtom is a bound variable reference.
type IdentAtom struct {
	Name string
	Off  int
}

func (IdentAtom) node()          {}
func (n IdentAtom) Offset() int { return n.Off }

// BoolAtom is a boolean literal.
type BoolAtom struct {
	Value bool
	Off   int
}

func (BoolAtom) node()          {}
func (n BoolAtom) Offset() int { return n.Off }

// StringAtom is a quoted string literal, permitted only where the grammar
// allows string arguments (none of the current whitelisted operators
// consume one, but the lexer accepts the literal so parse errors are
// reported precisely rather than failing at tokenization).
type StringAtom struct {
	Value string
	Off   int
}

func (StringAtom) node()          {}
func (n StringAtom) Offset() int { return n.Off }

// Form is `(OP arg ...)`, the only compound syntax the grammar has.
type Form struct {
	Op   string
	Args []Node
	Off  int
}

func (Form) node()          {}
func (f Form) Offset() int { return f.Off }

// whitelistedOps is the complete operator whitelist from the grammar.
// Anything not in this set is rejected by the parser, never evaluated.
var whitelistedOps = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "IMPLIES": true, "IFF": true,
	"PLUS": true, "MINUS": true, "MUL": true, "DIV": true, "MOD": true, "POW": true, "NEG": true,
	"EQ": true, "NEQ": true, "LT": true, "LE": true, "GT": true, "GE": true,
	"ITE": true,
	"FORALL": true, "EXISTS": true,
	"ASSERT": true, "PROGRAM": true,
}

// IsWhitelistedOp reports whether op is one of the grammar's permitted
// operator names.
func IsWhitelistedOp(op string) bool {
	return whitelistedOps[op]
}
