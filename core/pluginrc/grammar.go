package pluginrc

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// document is the participle grammar for the cache: a flat sequence of
// parenthesized forms, each opening with a symbol.
//
//nolint:govet // participle grammar tags are not standard struct tags
type document struct {
	Forms []*form `@@*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type form struct {
	Pos   lexer.Position
	Head  string  `"(" @Ident`
	Items []*item `@@* ")"`
}

//nolint:govet // participle grammar tags are not standard struct tags
type item struct {
	Pos   lexer.Position
	Form  *form   `  @@`
	Str   *string `| @String`
	Int   *int64  `| @Int`
	Ident *string `| @Ident`
}

var rcLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Int", Pattern: `-?[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_\-]*`},
	{Name: "Punct", Pattern: `[()]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var rcParser = participle.MustBuild[document](
	participle.Lexer(rcLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
)

// cursor walks the items of one form in order.
type cursor struct {
	f   *form
	pos int
}

func newCursor(f *form) *cursor { return &cursor{f: f} }

func (c *cursor) errorf(format string, args ...any) error {
	pos := c.f.Pos
	if c.pos < len(c.f.Items) {
		pos = c.f.Items[c.pos].Pos
	}
	return fmt.Errorf("%d:%d: (%s): %s", pos.Line, pos.Column, c.f.Head, fmt.Sprintf(format, args...))
}

func (c *cursor) done() bool { return c.pos >= len(c.f.Items) }

func (c *cursor) peek() *item {
	if c.done() {
		return nil
	}
	return c.f.Items[c.pos]
}

func (c *cursor) str() (string, error) {
	it := c.peek()
	if it == nil || it.Str == nil {
		return "", c.errorf("expected string")
	}
	c.pos++
	return *it.Str, nil
}

// optStr reads a string if one comes next.
func (c *cursor) optStr() (string, bool) {
	it := c.peek()
	if it == nil || it.Str == nil {
		return "", false
	}
	c.pos++
	return *it.Str, true
}

func (c *cursor) int() (int64, error) {
	it := c.peek()
	if it == nil || it.Int == nil {
		return 0, c.errorf("expected integer")
	}
	c.pos++
	return *it.Int, nil
}

func (c *cursor) ident() (string, error) {
	it := c.peek()
	if it == nil || it.Ident == nil {
		return "", c.errorf("expected identifier")
	}
	c.pos++
	return *it.Ident, nil
}

// form reads a nested form, which must open with one of heads.
func (c *cursor) form(heads ...string) (*form, error) {
	it := c.peek()
	if it == nil || it.Form == nil {
		return nil, c.errorf("expected (%s ...)", heads[0])
	}
	for _, h := range heads {
		if it.Form.Head == h {
			c.pos++
			return it.Form, nil
		}
	}
	return nil, c.errorf("unexpected (%s ...), expected (%s ...)", it.Form.Head, heads[0])
}

// peekForm reports whether the next item is a form opening with head.
func (c *cursor) peekForm(heads ...string) bool {
	it := c.peek()
	if it == nil || it.Form == nil {
		return false
	}
	for _, h := range heads {
		if it.Form.Head == h {
			return true
		}
	}
	return false
}

func (c *cursor) end() error {
	if !c.done() {
		return c.errorf("unexpected trailing value")
	}
	return nil
}
