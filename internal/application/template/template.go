package template

import (
	"fmt"
	"strings"
)

// InputName is the reserved placeholder bound to the workflow input
const InputName = "input"

// Vars maps placeholder names to replacement text
type Vars map[string]string

type tokenKind int

const (
	textToken tokenKind = iota
	placeholderToken
)

type token struct {
	kind tokenKind
	text string
}

// Template is a parsed prompt template
type Template struct {
	tokens []token
}

// UnresolvedError lists placeholders that had no binding in strict mode
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved placeholders: %s", strings.Join(e.Names, ", "))
}

// Parse tokenizes a template. Parsing never fails: anything that is not a
// well-formed placeholder is literal text.
func Parse(src string) *Template {
	var (
		tokens []token
		lit    strings.Builder
	)

	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{kind: textToken, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '\\' && i+1 < len(src) && isEscapable(src[i+1]):
			lit.WriteByte(src[i+1])
			i += 2
		case c == '{':
			end := closingBrace(src, i+1)
			if end < 0 {
				lit.WriteByte(c)
				i++
				continue
			}
			flush()
			tokens = append(tokens, token{kind: placeholderToken, text: src[i+1 : end]})
			i = end + 1
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()

	return &Template{tokens: tokens}
}

// Placeholders returns placeholder names in order of appearance
func (t *Template) Placeholders() []string {
	var names []string
	for _, tok := range t.tokens {
		if tok.kind == placeholderToken {
			names = append(names, tok.text)
		}
	}
	return names
}

// Render substitutes every bound placeholder and leaves the rest verbatim
func (t *Template) Render(vars Vars) string {
	out, _ := t.render(vars)
	return out
}

// RenderStrict substitutes placeholders and fails when any is unbound
func (t *Template) RenderStrict(vars Vars) (string, error) {
	out, missing := t.render(vars)
	if len(missing) > 0 {
		return "", &UnresolvedError{Names: missing}
	}
	return out, nil
}

func (t *Template) render(vars Vars) (string, []string) {
	var (
		b       strings.Builder
		missing []string
	)
	for _, tok := range t.tokens {
		if tok.kind == textToken {
			b.WriteString(tok.text)
			continue
		}
		if value, ok := vars[tok.text]; ok {
			b.WriteString(value)
			continue
		}
		missing = append(missing, tok.text)
		b.WriteByte('{')
		b.WriteString(tok.text)
		b.WriteByte('}')
	}
	return b.String(), missing
}

// Resolve parses and renders src in one call with the permissive policy
func Resolve(src string, vars Vars) string {
	return Parse(src).Render(vars)
}

// closingBrace finds the brace closing a placeholder opened before from.
// Empty names, nested braces and line breaks disqualify the placeholder.
func closingBrace(src string, from int) int {
	for j := from; j < len(src); j++ {
		switch src[j] {
		case '}':
			if j == from {
				return -1
			}
			return j
		case '{', '\n':
			return -1
		}
	}
	return -1
}

func isEscapable(c byte) bool {
	return c == '{' || c == '}' || c == '\\'
}
