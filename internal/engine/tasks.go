package engine

// CodeTask is a raw source snippet awaiting static analysis. Unlike math,
// logic, and stats tasks, a translator never produces this: the engine,
// not the translator, is the authority over code payloads.
type CodeTask struct {
	Code     string
	Language string // "python" or "javascript"
}

// SQLSchema declares the tables and columns a SQL task is allowed to
// reference.
type SQLSchema struct {
	Tables map[string][]string // table name -> column names
}

// SQLTask is a raw query plus the schema it must stay within.
type SQLTask struct {
	Query  string
	Schema SQLSchema
}

// ImageTask is image bytes paired with the claim made about their content.
type ImageTask struct {
	ImageBytes []byte
	Claim      string
}

// ReasoningTaskStep is one atomic step of a decomposed reasoning chain,
// tagged with the engine kind that should verify it and the kind-specific
// payload that engine expects.
type ReasoningTaskStep struct {
	Kind    string // "math" | "logic" | "stats" | "fact" | "code" | "sql"
	Payload interface{}
}

// ReasoningTask is an ordered chain of steps, each handed to its own
// engine; the first failing step short-circuits the chain.
type ReasoningTask struct {
	Steps []ReasoningTaskStep
}
