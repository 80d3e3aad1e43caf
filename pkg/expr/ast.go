package expr

// node is implemented by every AST node the parser can produce. The set
// of node types IS the whitelist: anything the grammar cannot produce
// (assignments, function defs, lambdas, imports) simply has no node type
// and is rejected at parse time in the lexer/parser, never at eval time.
type node interface{ isNode() }

type litNode struct{ value any }
type nameNode struct{ ident string }
type attrNode struct {
	value node
	attr  string
}
type subscriptNode struct {
	value node
	index node
}
type callNode struct {
	fn   node
	args []node
}
type unaryNode struct {
	op string
	x  node
}
type binNode struct {
	op   string
	x, y node
}
type boolNode struct {
	op     string // "and" | "or"
	values []node
}
type compareNode struct {
	left        node
	ops         []string
	comparators []node
}
type ifExpNode struct {
	test, body, orelse node
}
type listNode struct{ elts []node }
type listCompNode struct {
	elt    node
	target string
	iter   node
	ifs    []node
}

func (litNode) isNode()        {}
func (nameNode) isNode()       {}
func (attrNode) isNode()       {}
func (subscriptNode) isNode()  {}
func (callNode) isNode()       {}
func (unaryNode) isNode()      {}
func (binNode) isNode()        {}
func (boolNode) isNode()       {}
func (compareNode) isNode()    {}
func (ifExpNode) isNode()      {}
func (listNode) isNode()       {}
func (listCompNode) isNode()   {}
