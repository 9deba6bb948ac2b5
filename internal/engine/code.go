package engine

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
)

// CodeAdapter parses source into an abstract syntax tree with tree-sitter
// and walks it against a fixed rule catalogue — it never executes the
// code it analyzes.
type CodeAdapter struct {
	sourceNames []string
}

// NewCodeAdapter builds a CodeAdapter. sourceNames lists the parameter
// names treated as request-boundary taint sources; a nil slice uses
// defaultSourceNames.
func NewCodeAdapter(sourceNames []string) *CodeAdapter {
	if len(sourceNames) == 0 {
		sourceNames = defaultSourceNames
	}
	return &CodeAdapter{sourceNames: sourceNames}
}

func newParser(language string) (*sitter.Parser, bool) {
	parser := sitter.NewParser()
	switch strings.ToLower(language) {
	case "javascript", "js":
		parser.SetLanguage(javascript.GetLanguage())
		return parser, true
	case "python", "py":
		parser.SetLanguage(python.GetLanguage())
		return parser, true
	default:
		return nil, false
	}
}

// Verify parses task.Code and returns a severity-tagged issue list as the
// result payload. A critical finding resolves UNSAFE; a high finding
// resolves FAILED; anything lesser (or nothing) resolves VERIFIED.
func (a *CodeAdapter) Verify(ctx context.Context, task CodeTask) (Result, error) {
	started := time.Now()

	syn, ok := syntaxFor(task.Language)
	if !ok {
		err := fmt.Errorf("code: unsupported language %q", task.Language)
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, err
	}

	parser, _ := newParser(task.Language)
	source := []byte(task.Code)
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return Result{Verdict: VerdictError, Latency: time.Since(started), Diagnostic: err.Error()}, fmt.Errorf("code: parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	issues := a.analyze(root, source, syn, strings.ToLower(task.Language))

	result := Result{Payload: issues, Latency: time.Since(started)}
	switch worstSeverity(issues) {
	case "critical":
		result.Verdict = VerdictUnsafe
		result.Confidence = 1.0
	case "high":
		result.Verdict = VerdictFailed
		result.Confidence = 0.9
	default:
		result.Verdict = VerdictVerified
		result.Confidence = 1.0
	}
	return result, nil
}

func worstSeverity(issues []Issue) string {
	rank := map[string]int{"critical": 3, "high": 2, "medium": 1, "info": 0}
	worst := ""
	best := -1
	for _, iss := range issues {
		if r, ok := rank[iss.Severity]; ok && r > best {
			best = r
			worst = iss.Severity
		}
	}
	return worst
}

func (a *CodeAdapter) analyze(root *sitter.Node, source []byte, syn codeSyntax, language string) []Issue {
	var issues []Issue

	funcs := collectFunctions(root, source, syn)
	taint := a.seedTaint(funcs)

	// Fixed-point alias/call propagation bounded at two hops, matching
	// the "up to two function hops" contract.
	for hop := 0; hop < 2; hop++ {
		propagateAssignments(root, source, syn, taint)
		propagateCallArguments(root, source, syn, funcs, taint)
	}

	walkStructural(root, source, syn, language, funcs, &issues)
	walkSinks(root, source, syn, language, taint, &issues)

	return issues
}

type funcDef struct {
	name   string
	params []string
	body   *sitter.Node
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)

func leadingIdent(text string) string {
	m := identPattern.FindString(strings.TrimSpace(text))
	return m
}

func collectFunctions(node *sitter.Node, source []byte, syn codeSyntax) map[string]funcDef {
	result := map[string]funcDef{}
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if isType(n.Type(), syn.FuncDefTypes) {
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				name := nodeText(nameNode, source)
				var params []string
				if paramsNode := n.ChildByFieldName("parameters"); paramsNode != nil {
					for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
						p := paramsNode.NamedChild(i)
						if ident := leadingIdent(nodeText(p, source)); ident != "" {
							params = append(params, ident)
						}
					}
				}
				result[name] = funcDef{name: name, params: params, body: n.ChildByFieldName("body")}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(node)
	return result
}

func isType(t string, candidates []string) bool {
	for _, c := range candidates {
		if t == c {
			return true
		}
	}
	return false
}

// seedTaint marks every function parameter matching a as a configured
// request-boundary source name as tainted, independent of lexical scope.
// This is a flat, whole-file approximation rather than full scope-aware
// dataflow — sufficient to catch the request-to-sink patterns the rule
// catalogue targets without a full symbol table.
func (a *CodeAdapter) seedTaint(funcs map[string]funcDef) map[string]bool {
	taint := map[string]bool{}
	for _, fn := range funcs {
		for _, p := range fn.params {
			if containsAny(p, a.sourceNames) {
				taint[p] = true
			}
		}
	}
	return taint
}

func propagateAssignments(node *sitter.Node, source []byte, syn codeSyntax, taint map[string]bool) {
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if isType(n.Type(), syn.AssignTypes) {
			left := n.ChildByFieldName("left")
			if left == nil {
				left = n.ChildByFieldName("name")
			}
			right := n.ChildByFieldName("right")
			if right == nil {
				right = n.ChildByFieldName("value")
			}
			if left != nil && right != nil {
				lhs := leadingIdent(nodeText(left, source))
				rhsText := nodeText(right, source)
				if lhs != "" && referencesTainted(rhsText, taint) {
					taint[lhs] = true
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(node)
}

func propagateCallArguments(node *sitter.Node, source []byte, syn codeSyntax, funcs map[string]funcDef, taint map[string]bool) {
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == syn.CallType {
			callee := calleeText(n, source)
			if fn, ok := funcs[callee]; ok {
				args := argNodes(n)
				for i, arg := range args {
					if i >= len(fn.params) {
						break
					}
					if referencesTainted(nodeText(arg, source), taint) {
						taint[fn.params[i]] = true
					}
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(node)
}

func referencesTainted(text string, taint map[string]bool) bool {
	for _, tok := range identifierTokens(text) {
		if taint[tok] {
			return true
		}
	}
	return false
}

var identifierTokenPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

func identifierTokens(text string) []string {
	return identifierTokenPattern.FindAllString(text, -1)
}

func calleeText(callNode *sitter.Node, source []byte) string {
	if fn := callNode.ChildByFieldName("function"); fn != nil {
		return nodeText(fn, source)
	}
	return ""
}

// nodeText slices the exact source bytes a node spans, the same
// StartByte/EndByte idiom the retrieved tree-sitter-based parser uses
// rather than any higher-level node-to-string helper.
func nodeText(n *sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	return string(source[n.StartByte():n.EndByte()])
}

func argNodes(callNode *sitter.Node) []*sitter.Node {
	argsNode := callNode.ChildByFieldName("arguments")
	if argsNode == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(argsNode.NamedChildCount()); i++ {
		out = append(out, argsNode.NamedChild(i))
	}
	return out
}

// walkStructural flags findings that don't depend on taint: dynamic
// evaluators, shell spawners, executing deserializers, dynamic
// imports/reflection with non-literal targets, infinite self-recursion,
// weak hashing, and secret-like constants.
func walkStructural(node *sitter.Node, source []byte, syn codeSyntax, language string, funcs map[string]funcDef, issues *[]Issue) {
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}

		if n.Type() == syn.CallType {
			callee := calleeText(n, source)
			args := argNodes(n)

			if matchesAny(callee, dynamicEvalSinks[language]) {
				*issues = append(*issues, issueAt(n, "critical", "dynamic-eval", fmt.Sprintf("direct call to dynamic evaluator %q", callee)))
			}
			if matchesAny(callee, shellSinks[language]) {
				*issues = append(*issues, issueAt(n, "critical", "shell-spawn", fmt.Sprintf("call to shell-spawning primitive %q", callee)))
			}
			if matchesAny(callee, executingDeserializerSinks[language]) {
				*issues = append(*issues, issueAt(n, "critical", "executing-deserializer", fmt.Sprintf("deserializer %q can execute embedded code", callee)))
			}
			if matchesAny(callee, dynamicImportSinks[language]) && len(args) > 0 && !isType(args[0].Type(), syn.StringTypes) {
				*issues = append(*issues, issueAt(n, "critical", "dynamic-import", fmt.Sprintf("dynamic import %q with non-literal target", callee)))
			}
			if matchesAny(callee, reflectionDispatchSinks[language]) && len(args) > 1 && !isType(args[1].Type(), syn.StringTypes) {
				*issues = append(*issues, issueAt(n, "critical", "reflection-dispatch", fmt.Sprintf("reflective dispatch %q with non-literal member name", callee)))
			}

			if family, ok := hashCallees[callee]; ok {
				inPasswordContext := false
				for _, arg := range args {
					if containsAny(nodeText(arg, source), passwordContextNames) {
						inPasswordContext = true
					}
				}
				if inPasswordContext {
					if weakHashFamilies[family] {
						*issues = append(*issues, issueAt(n, "critical", "weak-password-hash", fmt.Sprintf("weak hash %q used in a password context", family)))
					} else {
						*issues = append(*issues, issueAt(n, "medium", "unsalted-password-hash", fmt.Sprintf("SHA-family hash %q in a password context with no visible salt", family)))
					}
				}
			}
		}

		if isType(n.Type(), syn.AssignTypes) {
			checkSecretConstant(n, source, syn, issues)
		}

		if isType(n.Type(), syn.FuncDefTypes) {
			checkInfiniteRecursion(n, source, syn, issues)
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(node)
}

func checkSecretConstant(n *sitter.Node, source []byte, syn codeSyntax, issues *[]Issue) {
	left := n.ChildByFieldName("left")
	if left == nil {
		left = n.ChildByFieldName("name")
	}
	right := n.ChildByFieldName("right")
	if right == nil {
		right = n.ChildByFieldName("value")
	}
	if left == nil || right == nil || !isType(right.Type(), syn.StringTypes) {
		return
	}
	name := leadingIdent(nodeText(left, source))
	if name == "" || !containsAny(name, secretIdentifierNames) {
		return
	}
	literal := strings.Trim(nodeText(right, source), "\"'`")
	if len(literal) > 20 && shannonEntropy(literal) > 3.5 {
		*issues = append(*issues, issueAt(n, "critical", "hardcoded-secret", fmt.Sprintf("long high-entropy constant assigned to %q looks like a hardcoded secret", name)))
	}
}

func checkInfiniteRecursion(n *sitter.Node, source []byte, syn codeSyntax, issues *[]Issue) {
	nameNode := n.ChildByFieldName("name")
	bodyNode := n.ChildByFieldName("body")
	if nameNode == nil || bodyNode == nil || bodyNode.Type() != syn.BlockType {
		return
	}
	name := nodeText(nameNode, source)
	if bodyNode.NamedChildCount() != 1 {
		return
	}
	stmt := bodyNode.NamedChild(0)
	if containsNodeType(stmt, syn.IfTypes) {
		return
	}
	if strings.Contains(nodeText(stmt, source), name+"(") {
		*issues = append(*issues, issueAt(n, "critical", "infinite-recursion", fmt.Sprintf("function %q unconditionally calls itself", name)))
	}
}

func containsNodeType(n *sitter.Node, types []string) bool {
	if n == nil {
		return false
	}
	if isType(n.Type(), types) {
		return true
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if containsNodeType(n.Child(i), types) {
			return true
		}
	}
	return false
}

// walkSinks flags the taint-tracked High severity network/filesystem
// calls once propagateAssignments/propagateCallArguments have converged.
func walkSinks(node *sitter.Node, source []byte, syn codeSyntax, language string, taint map[string]bool, issues *[]Issue) {
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if n.Type() == syn.CallType {
			callee := calleeText(n, source)
			if matchesAny(callee, networkSinks[language]) || matchesAny(callee, fsSinks[language]) {
				for _, arg := range argNodes(n) {
					if referencesTainted(nodeText(arg, source), taint) {
						*issues = append(*issues, issueAt(n, "high", "tainted-sink", fmt.Sprintf("network/filesystem primitive %q called with a request-derived argument", callee)))
						break
					}
				}
			}
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(node)
}

func issueAt(n *sitter.Node, severity, rule, message string) Issue {
	point := n.StartPoint()
	return Issue{
		Severity: severity,
		Rule:     rule,
		Message:  message,
		Line:     int(point.Row) + 1,
		Column:   int(point.Column) + 1,
	}
}

// shannonEntropy returns bits of entropy per character, used to separate
// plausible secrets from ordinary long strings.
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := map[rune]int{}
	for _, r := range s {
		counts[r]++
	}
	length := float64(len(s))
	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}
