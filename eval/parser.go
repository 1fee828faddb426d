// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package eval

import (
	"math/big"
)

// parser implements the grammar from spec.md §4.G, precedence loosest to
// tightest: select-by-name; field access `.`; index `[k]`/slice
// `[a..b]`/`[a..]`; dereference `*`; address-of `&`; canonical form `~`;
// parenthesized pointer cast `(*type)addr`; type cast `(:type) expr`.
// Deref/addr-of/casts bind tighter than postfix `.`/`[]` only in the
// sense that they're prefix operators applied to a primary before any
// postfix chain is parsed; `~` is postfix, applied last, after the
// postfix chain, matching "tightest" by being evaluated outermost-last.
type parser struct {
	lx   *lexer
	cur  token
	peek token
}

// Parse parses a single data-query expression.
func Parse(src string) (Expr, error) {
	p := &parser{lx: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, p.lx.errorf("unexpected trailing input at token %q", p.cur.text)
	}
	return expr, nil
}

func (p *parser) advance() error {
	p.cur = p.peek
	t, err := p.lx.next()
	if err != nil {
		return err
	}
	p.peek = t
	return nil
}

// parseExpr parses a prefixed primary followed by a postfix chain of
// `.`/`[]`/`~` operators.
func (p *parser) parseExpr() (Expr, error) {
	x, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parsePostfix(x)
}

func (p *parser) parsePostfix(x Expr) (Expr, error) {
	for {
		switch p.cur.kind {
		case tokDot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokIdent {
				return nil, p.lx.errorf("expected field name after '.'")
			}
			name := p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			x = Field{X: x, Name: name}
		case tokLBrack:
			if err := p.advance(); err != nil {
				return nil, err
			}
			next, err := p.parseIndexOrSlice(x)
			if err != nil {
				return nil, err
			}
			x = next
		case tokTilde:
			if err := p.advance(); err != nil {
				return nil, err
			}
			x = Canonical{X: x}
		case tokLParen:
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			x = Call{Func: x, Args: args}
		default:
			return x, nil
		}
	}
}

// parseIndexOrSlice parses the contents of `[...]` after the opening
// bracket has already been consumed, disambiguating `[k]` from `[a..b]`
// and `[a..]`.
func (p *parser) parseIndexOrSlice(x Expr) (Expr, error) {
	lo, err := p.parseKey()
	if err != nil {
		return nil, err
	}
	if p.cur.kind == tokDotDot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind == tokRBrack {
			if err := p.advance(); err != nil {
				return nil, err
			}
			return Slice{X: x, Lo: lo}, nil
		}
		hi, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRBrack {
			return nil, p.lx.errorf("expected ']' to close slice")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Slice{X: x, Lo: lo, Hi: hi, HasHi: true}, nil
	}
	if p.cur.kind != tokRBrack {
		return nil, p.lx.errorf("expected ']' to close index")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return Index{X: x, Key: lo}, nil
}

// parseKey parses an index/slice-bound key: an integer literal, a string
// literal, an identifier (for key expressions referencing other
// variables), a wildcard `*` (matches anything in that position), an
// array literal `[e0, e1, ...]`, or a struct literal `{name: value, ...}`
// — the latter two only meaningful as (part of) an associative-container
// key, never as a standalone value (spec.md §4.G).
func (p *parser) parseKey() (Expr, error) {
	switch p.cur.kind {
	case tokInt:
		return p.parsePrimary()
	case tokString:
		return p.parsePrimary()
	case tokIdent:
		return p.parsePrimary()
	case tokStar:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return WildcardKey{}, nil
	case tokLBrack:
		return p.parseArrayLit()
	case tokLBrace:
		return p.parseStructLit()
	default:
		return nil, p.lx.errorf("expected index key")
	}
}

// parseArrayLit parses `[e0, e1, ...]` as an associative-container key
// component; the opening bracket is still the current token on entry.
func (p *parser) parseArrayLit() (Expr, error) {
	if err := p.advance(); err != nil { // consume '['
		return nil, err
	}
	var elems []Expr
	if p.cur.kind == tokRBrack {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ArrayLit{Elems: elems}, nil
	}
	for {
		e, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokRBrack {
		return nil, p.lx.errorf("expected ']' to close array literal")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return ArrayLit{Elems: elems}, nil
}

// parseStructLit parses `{name: value, ...}` as an associative-container
// key component; the opening brace is still the current token on entry.
func (p *parser) parseStructLit() (Expr, error) {
	if err := p.advance(); err != nil { // consume '{'
		return nil, err
	}
	var fields []StructLitField
	if p.cur.kind == tokRBrace {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return StructLit{Fields: fields}, nil
	}
	for {
		if p.cur.kind != tokIdent {
			return nil, p.lx.errorf("expected field name in struct literal")
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokColon {
			return nil, p.lx.errorf("expected ':' after field name %q", name)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseKey()
		if err != nil {
			return nil, err
		}
		fields = append(fields, StructLitField{Name: name, Value: val})
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokRBrace {
		return nil, p.lx.errorf("expected '}' to close struct literal")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return StructLit{Fields: fields}, nil
}

func (p *parser) parseArgs() ([]Expr, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	var args []Expr
	if p.cur.kind == tokRParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return args, nil
	}
	for {
		a, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.cur.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if p.cur.kind != tokRParen {
		return nil, p.lx.errorf("expected ')' to close argument list")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return args, nil
}

// parsePrimary parses a select-by-name identifier, a literal, a
// parenthesized sub-expression, a pointer cast `(*type)addr`, a type cast
// `(:type) expr`, or a prefixed deref/address-of.
func (p *parser) parsePrimary() (Expr, error) {
	switch p.cur.kind {
	case tokStar:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return p.parsePostfixPrefixOperand(Deref{X: x})
	case tokAmp:
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return p.parsePostfixPrefixOperand(AddrOf{X: x})
	case tokIdent:
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return Ident{Name: name}, nil
	case tokInt:
		v := new(big.Int)
		if _, ok := v.SetString(p.cur.text, 10); !ok {
			return nil, p.lx.errorf("invalid integer literal %q", p.cur.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return IntLit{Value: v}, nil
	case tokString:
		s := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return StringLit{Value: s}, nil
	case tokLParen:
		return p.parseParenExpr()
	default:
		return nil, p.lx.errorf("unexpected token")
	}
}

// parsePostfixPrefixOperand lets a prefix-operator operand itself carry a
// postfix chain before the prefix wraps it, e.g. `*p.next` derefs
// `p.next`, not `(*p).next`.
func (p *parser) parsePostfixPrefixOperand(x Expr) (Expr, error) {
	switch x := x.(type) {
	case Deref:
		inner, err := p.parsePostfix(x.X)
		if err != nil {
			return nil, err
		}
		return Deref{X: inner}, nil
	case AddrOf:
		inner, err := p.parsePostfix(x.X)
		if err != nil {
			return nil, err
		}
		return AddrOf{X: inner}, nil
	default:
		return x, nil
	}
}

// parseParenExpr handles the three forms starting with `(`: a plain
// grouping `(expr)`, a pointer cast `(*type)addr`, and a type cast
// `(:type) expr`.
func (p *parser) parseParenExpr() (Expr, error) {
	if err := p.advance(); err != nil { // consume '('
		return nil, err
	}
	if p.cur.kind == tokColon {
		if err := p.advance(); err != nil {
			return nil, err
		}
		typeName, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, p.lx.errorf("expected ')' to close type cast")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		x, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return TypeCast{TypeName: typeName, X: x}, nil
	}
	if p.cur.kind == tokStar {
		if err := p.advance(); err != nil {
			return nil, err
		}
		typeName, err := p.parseTypeName()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, p.lx.errorf("expected ')' to close pointer cast")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		addr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return PointerCast{TypeName: typeName, Addr: addr}, nil
	}
	x, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokRParen {
		return nil, p.lx.errorf("expected ')'")
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return x, nil
}

// parseTypeName accepts a `::`-separated identifier path (e.g.
// "alloc::vec::Vec") as a single opaque string, since type names are
// resolved against the DWARF type table, not reparsed as expressions.
// Generic arguments in angle brackets are not accepted.
func (p *parser) parseTypeName() (string, error) {
	if p.cur.kind != tokIdent {
		return "", p.lx.errorf("expected type name")
	}
	name := p.cur.text
	if err := p.advance(); err != nil {
		return "", err
	}
	for p.cur.kind == tokColon {
		name += ":"
		if err := p.advance(); err != nil {
			return "", err
		}
		if p.cur.kind != tokColon {
			break
		}
		name += ":"
		if err := p.advance(); err != nil {
			return "", err
		}
		if p.cur.kind != tokIdent {
			break
		}
		name += p.cur.text
		if err := p.advance(); err != nil {
			return "", err
		}
	}
	return name, nil
}
