package engine

import "strings"

// codeSyntax describes the handful of tree-sitter node-type and field
// names the code adapter's walker needs, per supported language. Both the
// javascript and python grammars happen to name the relevant fields
// identically ("function", "arguments", "name", "body", "left", "right"),
// so only the node *type* strings differ between them.
type codeSyntax struct {
	CallType       string
	AssignTypes    []string
	FuncDefTypes   []string
	StringTypes    []string
	BlockType      string
	IfTypes        []string
}

var jsSyntax = codeSyntax{
	CallType:     "call_expression",
	AssignTypes:  []string{"assignment_expression", "variable_declarator"},
	FuncDefTypes: []string{"function_declaration", "function_expression", "arrow_function", "method_definition"},
	StringTypes:  []string{"string", "template_string"},
	BlockType:    "statement_block",
	IfTypes:      []string{"if_statement", "ternary_expression"},
}

var pySyntax = codeSyntax{
	CallType:     "call",
	AssignTypes:  []string{"assignment"},
	FuncDefTypes: []string{"function_definition"},
	StringTypes:  []string{"string"},
	BlockType:    "block",
	IfTypes:      []string{"if_statement", "conditional_expression"},
}

func syntaxFor(language string) (codeSyntax, bool) {
	switch strings.ToLower(language) {
	case "javascript", "js":
		return jsSyntax, true
	case "python", "py":
		return pySyntax, true
	default:
		return codeSyntax{}, false
	}
}

// dynamicEvalSinks are direct calls to a dynamic code evaluator — always
// critical regardless of arguments.
var dynamicEvalSinks = map[string][]string{
	"javascript": {"eval", "Function", "new Function", "vm.runInThisContext", "vm.runInNewContext"},
	"python":     {"eval", "exec", "compile"},
}

// shellSinks spawn a host shell or process — always critical.
var shellSinks = map[string][]string{
	"javascript": {"child_process.exec", "child_process.execSync", "child_process.spawn", "child_process.spawnSync"},
	"python":     {"os.system", "os.popen", "subprocess.call", "subprocess.run", "subprocess.Popen", "subprocess.check_output"},
}

// executingDeserializerSinks unmarshal data in a way that can execute code.
var executingDeserializerSinks = map[string][]string{
	"javascript": {"node-serialize.unserialize", "serialize-javascript.deserialize"},
	"python":     {"pickle.loads", "pickle.load", "yaml.load"},
}

// dynamicImportSinks are flagged only when the import target isn't a
// string literal.
var dynamicImportSinks = map[string][]string{
	"javascript": {"require", "import"},
	"python":     {"__import__", "importlib.import_module"},
}

// reflectionDispatchSinks resolve a member/attribute by name at runtime;
// flagged only when that name argument isn't a string literal.
var reflectionDispatchSinks = map[string][]string{
	"javascript": {"Reflect.get", "Reflect.apply"},
	"python":     {"getattr", "setattr"},
}

// networkSinks and fsSinks are the taint-tracked "High" severity sinks.
var networkSinks = map[string][]string{
	"javascript": {"fetch", "http.request", "https.request", "axios.get", "axios.post", "net.connect"},
	"python":     {"requests.get", "requests.post", "requests.put", "urllib.request.urlopen", "socket.connect", "http.client.HTTPConnection"},
}

var fsSinks = map[string][]string{
	"javascript": {"fs.readFile", "fs.readFileSync", "fs.writeFile", "fs.writeFileSync", "fs.unlink", "fs.unlinkSync"},
	"python":     {"open", "os.remove", "os.rename", "shutil.rmtree", "shutil.copy"},
}

// hashCallees maps the literal callee text to the hash family it invokes.
var hashCallees = map[string]string{
	"hashlib.md5":       "md5",
	"hashlib.sha1":      "sha1",
	"hashlib.sha256":    "sha256",
	"hashlib.sha512":    "sha512",
	"crypto.createHash": "crypto.createHash",
}

var weakHashFamilies = map[string]bool{"md5": true, "sha1": true}

// passwordContextNames is the substring list used to decide whether an
// identifier names a credential.
var passwordContextNames = []string{"password", "passwd", "pwd", "secret", "token", "credential"}

// secretIdentifierNames is the substring list for the long-constant rule.
var secretIdentifierNames = []string{"key", "secret", "token"}

func containsAny(name string, substrings []string) bool {
	lower := strings.ToLower(name)
	for _, s := range substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func matchesAny(callee string, catalogue []string) bool {
	for _, c := range catalogue {
		if callee == c {
			return true
		}
	}
	return false
}

// defaultSourceNames are the parameter names treated as request-boundary
// taint sources when no configuration overrides them.
var defaultSourceNames = []string{"request", "req", "input", "payload", "user_input", "args", "body"}
