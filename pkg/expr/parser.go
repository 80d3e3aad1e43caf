package expr

import "fmt"

type parser struct {
	tokens []token
	pos    int
	src    string
}

func parse(src string) (node, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, src: src}
	n, err := p.parseIfExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("unexpected trailing input at token %q", p.cur().text)
	}
	return n, nil
}

func (p *parser) cur() token  { return p.tokens[p.pos] }
func (p *parser) advance()    { p.pos++ }

func (p *parser) isName(text string) bool {
	return p.cur().kind == tokName && p.cur().text == text
}

func (p *parser) isOp(text string) bool {
	return p.cur().kind == tokOp && p.cur().text == text
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		return fmt.Errorf("expected %q, got %q", text, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) parseIfExpr() (node, error) {
	body, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.isName("if") {
		p.advance()
		test, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.isName("else") {
			return nil, fmt.Errorf("expected 'else' in conditional expression")
		}
		p.advance()
		orelse, err := p.parseIfExpr()
		if err != nil {
			return nil, err
		}
		return ifExpNode{test: test, body: body, orelse: orelse}, nil
	}
	return body, nil
}

func (p *parser) parseOr() (node, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	values := []node{first}
	for p.isName("or") {
		p.advance()
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	if len(values) == 1 {
		return first, nil
	}
	return boolNode{op: "or", values: values}, nil
}

func (p *parser) parseAnd() (node, error) {
	first, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	values := []node{first}
	for p.isName("and") {
		p.advance()
		next, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		values = append(values, next)
	}
	if len(values) == 1 {
		return first, nil
	}
	return boolNode{op: "and", values: values}, nil
}

func (p *parser) parseNot() (node, error) {
	if p.isName("not") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "not", x: x}, nil
	}
	return p.parseCompare()
}

var compareOps = map[string]bool{
	"==": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
}

func (p *parser) parseCompare() (node, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	var ops []string
	var comparators []node
	for {
		op, ok := p.matchCompareOp()
		if !ok {
			break
		}
		right, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
		comparators = append(comparators, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return compareNode{left: left, ops: ops, comparators: comparators}, nil
}

// matchCompareOp consumes one comparison operator, including the two-token
// "not in" form, and reports whether one was found at the current position.
func (p *parser) matchCompareOp() (string, bool) {
	if p.cur().kind == tokOp && compareOps[p.cur().text] {
		op := p.cur().text
		p.advance()
		return op, true
	}
	if p.isName("in") {
		p.advance()
		return "in", true
	}
	if p.isName("not") && p.peekIsName(1, "in") {
		p.advance()
		p.advance()
		return "not in", true
	}
	return "", false
}

func (p *parser) peekIsName(offset int, text string) bool {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return false
	}
	return p.tokens[idx].kind == tokName && p.tokens[idx].text == text
}

func (p *parser) parseAdd() (node, error) {
	left, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.cur().text
		p.advance()
		right, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseMul() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		op := p.cur().text
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binNode{op: op, x: left, y: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.isOp("-") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "-", x: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (node, error) {
	n, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.isOp("."):
			p.advance()
			if p.cur().kind != tokName {
				return nil, fmt.Errorf("expected attribute name after '.'")
			}
			attr := p.cur().text
			p.advance()
			n = attrNode{value: n, attr: attr}
		case p.isOp("["):
			p.advance()
			idx, err := p.parseIfExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			n = subscriptNode{value: n, index: idx}
		case p.isOp("("):
			p.advance()
			var args []node
			if !p.isOp(")") {
				for {
					arg, err := p.parseIfExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.isOp(",") {
						p.advance()
						continue
					}
					break
				}
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			n = callNode{fn: n, args: args}
		default:
			return n, nil
		}
	}
}

func (p *parser) parseAtom() (node, error) {
	tok := p.cur()
	switch {
	case tok.kind == tokNumber:
		p.advance()
		return litNode{value: tok.num}, nil
	case tok.kind == tokString:
		p.advance()
		return litNode{value: tok.text}, nil
	case tok.kind == tokName && tok.text == "True":
		p.advance()
		return litNode{value: true}, nil
	case tok.kind == tokName && tok.text == "False":
		p.advance()
		return litNode{value: false}, nil
	case tok.kind == tokName && tok.text == "None":
		p.advance()
		return litNode{value: nil}, nil
	case tok.kind == tokName:
		p.advance()
		return nameNode{ident: tok.text}, nil
	case p.isOp("("):
		p.advance()
		n, err := p.parseIfExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return n, nil
	case p.isOp("["):
		return p.parseListOrComprehension()
	default:
		return nil, fmt.Errorf("unexpected token %q", tok.text)
	}
}

func (p *parser) parseListOrComprehension() (node, error) {
	p.advance() // consume '['
	if p.isOp("]") {
		p.advance()
		return listNode{}, nil
	}

	first, err := p.parseIfExpr()
	if err != nil {
		return nil, err
	}

	if p.isName("for") {
		p.advance()
		if p.cur().kind != tokName {
			return nil, fmt.Errorf("expected comprehension target name")
		}
		target := p.cur().text
		p.advance()
		if !p.isName("in") {
			return nil, fmt.Errorf("expected 'in' in comprehension")
		}
		p.advance()
		iter, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		var ifs []node
		for p.isName("if") {
			p.advance()
			cond, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			ifs = append(ifs, cond)
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return listCompNode{elt: first, target: target, iter: iter, ifs: ifs}, nil
	}

	elts := []node{first}
	for p.isOp(",") {
		p.advance()
		if p.isOp("]") {
			break
		}
		elt, err := p.parseIfExpr()
		if err != nil {
			return nil, err
		}
		elts = append(elts, elt)
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return listNode{elts: elts}, nil
}
