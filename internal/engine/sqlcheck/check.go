package sqlcheck

import "strings"

// Schema declares the tables and columns a query is allowed to reference.
type Schema struct {
	Tables map[string][]string // table name -> column names, all lower-case
}

func (s Schema) hasTable(name string) bool {
	_, ok := s.Tables[strings.ToLower(name)]
	return ok
}

func (s Schema) hasColumn(table, column string) bool {
	cols, ok := s.Tables[strings.ToLower(table)]
	if !ok {
		return false
	}
	for _, c := range cols {
		if strings.EqualFold(c, column) {
			return true
		}
	}
	return false
}

func (s Schema) anyTableHasColumn(column string) bool {
	for _, cols := range s.Tables {
		for _, c := range cols {
			if strings.EqualFold(c, column) {
				return true
			}
		}
	}
	return false
}

// disallowedKeywords name statements or clauses this checker never admits,
// regardless of where in the query they appear — including inside a
// syntactically valid SELECT, where they would indicate a smuggled
// data-modifying statement some dialects permit (e.g. a CTE).
var disallowedKeywords = map[string]bool{
	"insert": true, "update": true, "delete": true, "drop": true, "alter": true,
	"create": true, "truncate": true, "grant": true, "revoke": true, "exec": true,
	"execute": true, "call": true, "attach": true, "pragma": true, "merge": true,
	"into": true,
}

// Violation is one reason a query was rejected.
type Violation struct {
	Reason string
	Offset int
}

// Result is the outcome of checking a query against Schema.
type Result struct {
	Allowed    bool
	Violations []Violation
}

// Check tokenizes query and evaluates it against the whitelist: SELECT
// only, no stacked statements, no references outside schema.
func Check(query string, schema Schema) (Result, error) {
	tokens, err := Tokenize(query)
	if err != nil {
		return Result{}, err
	}
	if len(tokens) == 0 {
		return Result{Allowed: false, Violations: []Violation{{Reason: "empty query"}}}, nil
	}

	statements := splitStatements(tokens)
	if len(statements) > 1 {
		return Result{Allowed: false, Violations: []Violation{{Reason: "stacked statements are not allowed", Offset: statements[1][0].Offset}}}, nil
	}
	stmt := statements[0]

	var violations []Violation

	first := stmt[0]
	if first.Kind != TokenKeyword || strings.ToLower(first.Text) != "select" {
		violations = append(violations, Violation{Reason: "only SELECT statements are allowed", Offset: first.Offset})
	}

	for _, tok := range stmt {
		if tok.Kind == TokenKeyword && disallowedKeywords[strings.ToLower(tok.Text)] {
			violations = append(violations, Violation{Reason: "disallowed keyword " + strings.ToUpper(tok.Text), Offset: tok.Offset})
		}
	}

	tables, aliases := collectTables(stmt)
	for name, tok := range tables {
		if !schemaHasTable(schema, name) {
			violations = append(violations, Violation{Reason: "table " + name + " is not in the declared schema", Offset: tok.Offset})
		}
	}

	violations = append(violations, checkColumns(stmt, schema, tables, aliases)...)

	return Result{Allowed: len(violations) == 0, Violations: violations}, nil
}

func schemaHasTable(schema Schema, name string) bool {
	return schema.hasTable(name)
}

// splitStatements breaks the token stream on top-level semicolons,
// dropping any empty trailing segment after a final semicolon.
func splitStatements(tokens []Token) [][]Token {
	var out [][]Token
	var current []Token
	for _, tok := range tokens {
		if tok.Kind == TokenPunct && tok.Text == ";" {
			if len(current) > 0 {
				out = append(out, current)
				current = nil
			}
			continue
		}
		current = append(current, tok)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	if len(out) == 0 {
		out = append(out, tokens)
	}
	return out
}

// collectTables walks FROM/JOIN clauses, returning the set of referenced
// table names (first occurrence token kept for diagnostics) and an
// alias-to-table map.
func collectTables(stmt []Token) (map[string]Token, map[string]string) {
	tables := map[string]Token{}
	aliases := map[string]string{}
	for i := 0; i < len(stmt); i++ {
		tok := stmt[i]
		if tok.Kind != TokenKeyword {
			continue
		}
		lower := strings.ToLower(tok.Text)
		if lower != "from" && lower != "join" {
			continue
		}
		if i+1 >= len(stmt) || stmt[i+1].Kind != TokenIdent {
			continue
		}
		tableTok := stmt[i+1]
		tableName := tableTok.Text
		if _, ok := tables[strings.ToLower(tableName)]; !ok {
			tables[strings.ToLower(tableName)] = tableTok
		}
		alias := tableName
		next := i + 2
		if next < len(stmt) && stmt[next].Kind == TokenKeyword && strings.ToLower(stmt[next].Text) == "as" {
			next++
		}
		if next < len(stmt) && stmt[next].Kind == TokenIdent {
			alias = stmt[next].Text
		}
		aliases[strings.ToLower(alias)] = strings.ToLower(tableName)
	}
	return tables, aliases
}

// checkColumns validates qualified "table.column" / "alias.column"
// references against the schema. Unqualified identifiers are only
// flagged when they don't match any column of any referenced table —
// a deliberately lenient check, since disambiguating an unqualified
// column without a full SQL grammar is out of scope for this checker.
func checkColumns(stmt []Token, schema Schema, tables map[string]Token, aliases map[string]string) []Violation {
	var violations []Violation
	for i := 0; i < len(stmt); i++ {
		tok := stmt[i]
		if tok.Kind != TokenIdent {
			continue
		}
		// Skip function calls: ident immediately followed by '('.
		if i+1 < len(stmt) && stmt[i+1].Kind == TokenPunct && stmt[i+1].Text == "(" {
			continue
		}
		// Qualified reference: previous token is '.', and the one before
		// that is the qualifier.
		if i >= 2 && stmt[i-1].Kind == TokenPunct && stmt[i-1].Text == "." {
			qualifier := strings.ToLower(stmt[i-2].Text)
			table, isAlias := aliases[qualifier]
			if !isAlias {
				table = qualifier
			}
			if !schema.hasColumn(table, tok.Text) {
				violations = append(violations, Violation{Reason: "column " + qualifier + "." + tok.Text + " is not in the declared schema", Offset: tok.Offset})
			}
			continue
		}
		// Table/alias names and keywords-as-identifiers (e.g. "as x")
		// themselves are not column references.
		if _, isTable := tables[strings.ToLower(tok.Text)]; isTable {
			continue
		}
		if _, isAlias := aliases[strings.ToLower(tok.Text)]; isAlias {
			continue
		}
		if i > 0 && stmt[i-1].Kind == TokenKeyword && strings.ToLower(stmt[i-1].Text) == "as" {
			continue
		}
		if len(schema.Tables) > 0 && !schema.anyTableHasColumn(tok.Text) {
			violations = append(violations, Violation{Reason: "identifier " + tok.Text + " is not a column of any referenced table", Offset: tok.Offset})
		}
	}
	return violations
}
