package dsl

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser turns QWED-DSL source into an AST, rejecting anything outside the
// whitelisted grammar. It is total: every malformed input yields a
// ParseError, never a panic, and compilation is never attempted on a
// rejected parse.
type Parser struct {
	lex  *lexer
	tok  Token
	peek *Token
}

// Parse parses src as a single top-level form (an operator application,
// optionally the `(PROGRAM stmt ...)` wrapper) and returns its AST.
func Parse(src string) (Node, error) {
	p := &Parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}

	node, err := p.parseForm()
	if err != nil {
		return nil, err
	}

	if p.tok.Type != TokenEOF {
		return nil, &ParseError{Reason: "unexpected trailing input after top-level form", Offset: p.tok.Offset}
	}

	return node, nil
}

func (p *Parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) parseForm() (Node, error) {
	switch p.tok.Type {
	case TokenLParen:
		return p.parseCompound()
	case TokenNumber:
		return p.parseNumber()
	case TokenIdent:
		node := IdentAtom{Name: p.tok.Value, Off: p.tok.Offset}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	case TokenBool:
		node := BoolAtom{Value: p.tok.Value == "true", Off: p.tok.Offset}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	case TokenString:
		node := StringAtom{Value: p.tok.Value, Off: p.tok.Offset}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	case TokenRParen:
		return nil, &ParseError{Reason: "unbalanced parenthesis: unexpected ')'", Offset: p.tok.Offset}
	case TokenEOF:
		return nil, &ParseError{Reason: "unexpected end of input", Offset: p.tok.Offset}
	default:
		return nil, &ParseError{Reason: "unexpected token", Offset: p.tok.Offset}
	}
}

func (p *Parser) parseNumber() (Node, error) {
	off := p.tok.Offset
	raw := p.tok.Value
	isInt := !strings.Contains(raw, ".")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("invalid number literal %q", raw), Offset: off}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return NumberAtom{Value: value, IsInt: isInt, Off: off}, nil
}

func (p *Parser) parseCompound() (Node, error) {
	openOffset := p.tok.Offset
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}

	if p.tok.Type != TokenIdent {
		return nil, &ParseError{Reason: "expected operator identifier after '('", Offset: p.tok.Offset}
	}
	op := strings.ToUpper(p.tok.Value)
	if !IsWhitelistedOp(op) {
		return nil, &ParseError{Reason: fmt.Sprintf("operator %q is not whitelisted", p.tok.Value), Offset: p.tok.Offset}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var args []Node
	switch op {
	case "FORALL", "EXISTS":
		bound, err := p.parseBoundVarList()
		if err != nil {
			return nil, err
		}
		args = append(args, bound...)
	}

	for p.tok.Type != TokenRParen {
		if p.tok.Type == TokenEOF {
			return nil, &ParseError{Reason: "unbalanced parenthesis: missing ')'", Offset: openOffset}
		}
		arg, err := p.parseForm()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if err := p.advance(); err != nil { // consume ')'
		return nil, err
	}

	return Form{Op: op, Args: args, Off: openOffset}, nil
}

// parseBoundVarList parses the `(x y z)` variable list that FORALL/EXISTS
// require before the quantified body.
func (p *Parser) parseBoundVarList() ([]Node, error) {
	if p.tok.Type != TokenLParen {
		return nil, &ParseError{Reason: "expected bound variable list '(' after quantifier", Offset: p.tok.Offset}
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	var vars []Node
	for p.tok.Type != TokenRParen {
		if p.tok.Type != TokenIdent {
			return nil, &ParseError{Reason: "expected bound variable identifier", Offset: p.tok.Offset}
		}
		vars = append(vars, IdentAtom{Name: p.tok.Value, Off: p.tok.Offset})
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.advance(); err != nil { // consume ')'
		return nil, err
	}
	return []Node{boundVarList{Vars: vars}}, nil
}

// boundVarList wraps a quantifier's bound-variable list as a single
// pseudo-argument so the compiler can distinguish it from the quantified
// body that follows.
type boundVarList struct {
	Vars []Node
}

func (boundVarList) node()        {}
func (boundVarList) Offset() int { return 0 }
