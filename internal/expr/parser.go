package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"tabflow/domain/table"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokIdent
	tokColumn
	tokOp
	tokLParen
	tokRParen
	tokComma
	tokEOF
	tokError
)

type token struct {
	kind tokenKind
	text string
}

// lex splits a formula into tokens. Malformed input surfaces as a
// tokError token and fails during parsing.
func lex(input string) []token {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case r == ',':
			tokens = append(tokens, token{tokComma, ","})
			i++
		case r == '[':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == ']' {
					end = j
					break
				}
			}
			if end < 0 {
				tokens = append(tokens, token{tokError, "unterminated column reference"})
				return tokens
			}
			name := strings.TrimSpace(string(runes[i+1 : end]))
			if name == "" {
				tokens = append(tokens, token{tokError, "empty column reference"})
				return tokens
			}
			tokens = append(tokens, token{tokColumn, name})
			i = end + 1
		case r == '\'' || r == '"':
			quote := r
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == quote {
					end = j
					break
				}
			}
			if end < 0 {
				tokens = append(tokens, token{tokError, "unterminated string literal"})
				return tokens
			}
			tokens = append(tokens, token{tokString, string(runes[i+1 : end])})
			i = end + 1
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			tokens = append(tokens, token{tokIdent, string(runes[i:j])})
			i = j
		default:
			// multi-rune operators first
			two := ""
			if i+1 < len(runes) {
				two = string(runes[i : i+2])
			}
			switch two {
			case "==", "!=", ">=", "<=", "&&", "||":
				tokens = append(tokens, token{tokOp, two})
				i += 2
				continue
			}
			switch r {
			case '+', '-', '*', '/', '%', '>', '<', '!':
				tokens = append(tokens, token{tokOp, string(r)})
				i++
			case '=':
				// tolerate single = as equality
				tokens = append(tokens, token{tokOp, "=="})
				i++
			default:
				tokens = append(tokens, token{tokError, fmt.Sprintf("unexpected character %q", string(r))})
				return tokens
			}
		}
	}
	tokens = append(tokens, token{tokEOF, ""})
	return tokens
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) atEnd() bool {
	return p.peek().kind == tokEOF
}

func (p *parser) acceptOp(ops ...string) (string, bool) {
	t := p.peek()
	if t.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if t.text == op {
			p.next()
			return op, true
		}
	}
	return "", false
}

// Precedence climbing: or > and > comparison > additive >
// multiplicative > unary > primary.

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("||")
		if !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("&&")
		if !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op, ok := p.acceptOp("==", "!=", ">=", "<=", ">", "<")
	if !ok {
		return left, nil
	}
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return binaryNode{op: op, left: left, right: right}, nil
}

func (p *parser) parseAdditive() (node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("+", "-")
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseMultiplicative() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptOp("*", "/", "%")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if op, ok := p.acceptOp("-", "!"); ok {
		child, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, child: child}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokError:
		return nil, fmt.Errorf("%s", t.text)
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return literalNode{value: table.NewNumberValue(n)}, nil
	case tokString:
		// the empty string literal is the missing sentinel, matching
		// the domain-wide empty-cell policy
		return literalNode{value: table.NewStringValue(t.text)}, nil
	case tokColumn:
		return columnNode{name: t.text}, nil
	case tokIdent:
		switch t.text {
		case "true":
			return literalNode{value: table.NewBooleanValue(true)}, nil
		case "false":
			return literalNode{value: table.NewBooleanValue(false)}, nil
		}
		return p.parseCall(t.text)
	case tokLParen:
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return inner, nil
	}
	return nil, fmt.Errorf("unexpected %q", t.text)
}

func (p *parser) parseCall(name string) (node, error) {
	arity, ok := funcArity[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	if p.next().kind != tokLParen {
		return nil, fmt.Errorf("function %s requires arguments", name)
	}

	var args []node
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			break
		}
	}
	if p.next().kind != tokRParen {
		return nil, fmt.Errorf("missing closing parenthesis in %s call", name)
	}
	if arity >= 0 && len(args) != arity {
		return nil, fmt.Errorf("function %s takes %d arguments, got %d", name, arity, len(args))
	}
	if arity < 0 && len(args) == 0 {
		return nil, fmt.Errorf("function %s requires at least one argument", name)
	}
	return callNode{name: name, args: args}, nil
}
