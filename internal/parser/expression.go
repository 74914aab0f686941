package parser

import (
	"fmt"
	"strconv"

	"github.com/chigenori053/mathlang/internal/expr"
)

// ParseExpression parses a single infix expression. Integer division between
// literals builds a Rational node; symbolic division builds a * b^-1.
// Adjacency such as 2x or 3(x+1) is implicit multiplication.
func ParseExpression(src string) (expr.Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &exprParser{toks: toks}
	e, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, p.peek().text, p.peek().pos)
	}
	return e, nil
}

type exprParser struct {
	toks []token
	i    int
}

func (p *exprParser) peek() token { return p.toks[p.i] }

func (p *exprParser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *exprParser) parseSum() (expr.Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	terms := []expr.Expr{left}
	for {
		switch p.peek().kind {
		case tokPlus:
			p.next()
			t, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			terms = append(terms, t)
		case tokMinus:
			p.next()
			t, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			terms = append(terms, expr.Negation{Inner: t})
		default:
			if len(terms) == 1 {
				return terms[0], nil
			}
			return expr.Sum{Terms: terms}, nil
		}
	}
}

func (p *exprParser) parseTerm() (expr.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	factors := []expr.Expr{left}
	for {
		switch {
		case p.peek().kind == tokStar:
			p.next()
			f, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			factors = append(factors, f)
		case p.peek().kind == tokSlash:
			p.next()
			f, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			prev := factors[len(factors)-1]
			factors[len(factors)-1] = divide(prev, f)
		case p.implicitMultNext():
			f, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			factors = append(factors, f)
		default:
			if len(factors) == 1 {
				return factors[0], nil
			}
			return expr.Product{Factors: factors}, nil
		}
	}
}

// implicitMultNext reports whether the upcoming token starts a new factor
// with no explicit operator, e.g. the x in 2x or the ( in 3(x+1).
func (p *exprParser) implicitMultNext() bool {
	switch p.peek().kind {
	case tokIdent, tokLParen:
		return true
	}
	return false
}

func (p *exprParser) parseUnary() (expr.Expr, error) {
	if p.peek().kind == tokMinus {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Negation{Inner: inner}, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (expr.Expr, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokCaret {
		p.next()
		// Right-associative; exponents may carry a unary minus.
		exp, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return expr.Power{Base: base, Exponent: exp}, nil
	}
	return base, nil
}

func (p *exprParser) parseAtom() (expr.Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		v, err := strconv.ParseInt(t.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: integer %q out of range", ErrSyntax, t.text)
		}
		return expr.Integer{Value: v}, nil

	case tokIdent:
		if p.peek().kind == tokLParen {
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return expr.Call{Name: t.text, Args: args}, nil
		}
		return expr.Symbol{Name: t.text}, nil

	case tokLParen:
		inner, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		if p.next().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrSyntax)
		}
		return inner, nil
	}
	return nil, fmt.Errorf("%w: unexpected %q at %d", ErrSyntax, t.text, t.pos)
}

func (p *exprParser) parseArgs() ([]expr.Expr, error) {
	if p.peek().kind == tokRParen {
		p.next()
		return nil, nil
	}
	var args []expr.Expr
	for {
		a, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		switch p.next().kind {
		case tokComma:
			continue
		case tokRParen:
			return args, nil
		default:
			return nil, fmt.Errorf("%w: missing closing parenthesis in call", ErrSyntax)
		}
	}
}

// divide builds the tree for a / b: a Rational for integer literals, else
// multiplication by a reciprocal.
func divide(a, b expr.Expr) expr.Expr {
	if an, aok := intLiteral(a); aok {
		if bn, bok := intLiteral(b); bok {
			return wrapSign(expr.Rational{Num: abs(an), Den: abs(bn)}, (an < 0) != (bn < 0))
		}
	}
	return expr.Product{Factors: []expr.Expr{a, expr.Power{Base: b, Exponent: expr.Integer{Value: -1}}}}
}

func intLiteral(e expr.Expr) (int64, bool) {
	switch v := e.(type) {
	case expr.Integer:
		return v.Value, true
	case expr.Negation:
		if n, ok := intLiteral(v.Inner); ok {
			return -n, true
		}
	}
	return 0, false
}

func wrapSign(e expr.Expr, negative bool) expr.Expr {
	if negative {
		return expr.Negation{Inner: e}
	}
	return e
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
