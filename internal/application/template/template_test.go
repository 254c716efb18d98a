package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aescanero/stepchain/internal/application/template"
)

func TestResolveSimple(t *testing.T) {
	out := template.Resolve("Hello {name}", template.Vars{"name": "World"})
	assert.Equal(t, "Hello World", out)
}

func TestResolveMissingPassesThrough(t *testing.T) {
	assert.Equal(t, "{missing}", template.Resolve("{missing}", template.Vars{}))
	assert.Equal(t, "a {missing} b", template.Resolve("a {missing} b", nil))
}

func TestResolveRepeatedPlaceholder(t *testing.T) {
	out := template.Resolve("{x}-{x}-{x}", template.Vars{"x": "1"})
	assert.Equal(t, "1-1-1", out)
}

func TestResolveNamesWithSpaces(t *testing.T) {
	out := template.Resolve("Use {Topic Summary} now", template.Vars{
		"Topic Summary": "photosynthesis",
	})
	assert.Equal(t, "Use photosynthesis now", out)
}

func TestResolveDoesNotRescanValues(t *testing.T) {
	out := template.Resolve("{a}", template.Vars{"a": "{b}", "b": "nope"})
	assert.Equal(t, "{b}", out)
}

func TestResolveMalformedBraces(t *testing.T) {
	vars := template.Vars{"b": "B"}

	assert.Equal(t, "{}", template.Resolve("{}", vars))
	assert.Equal(t, "open {b", template.Resolve("open {b", vars))
	assert.Equal(t, "{a B", template.Resolve("{a {b}", vars))
	assert.Equal(t, "{b\n}", template.Resolve("{b\n}", vars))
	assert.Equal(t, "}B", template.Resolve("}{b}", vars))
}

func TestResolveEscapedBraces(t *testing.T) {
	vars := template.Vars{"name": "x"}

	assert.Equal(t, "{name}", template.Resolve(`\{name\}`, vars))
	assert.Equal(t, "{x}", template.Resolve(`\{{name}\}`, vars))
	assert.Equal(t, `C:\path x`, template.Resolve(`C:\path {name}`, vars))
}

func TestResolveEscapedBackslash(t *testing.T) {
	vars := template.Vars{"I": "dir"}

	assert.Equal(t, `path C:\dir`, template.Resolve(`path C:\\{I}`, vars))
	assert.Equal(t, `path C:{I}`, template.Resolve(`path C:\{I}`, vars))
	assert.Equal(t, `a\b`, template.Resolve(`a\\b`, vars))
	assert.Equal(t, `\{I}`, template.Resolve(`\\\{I}`, vars))
}

func TestResolveUnicode(t *testing.T) {
	out := template.Resolve("Traduire: {résumé} ✓", template.Vars{"résumé": "bonjour"})
	assert.Equal(t, "Traduire: bonjour ✓", out)
}

func TestPlaceholders(t *testing.T) {
	tpl := template.Parse("Summarize {input} using {S1} and {S1}")
	assert.Equal(t, []string{"input", "S1", "S1"}, tpl.Placeholders())

	assert.Empty(t, template.Parse("no placeholders").Placeholders())
}

func TestRenderStrict(t *testing.T) {
	tpl := template.Parse("{a} and {b} and {c}")

	out, err := tpl.RenderStrict(template.Vars{"a": "1", "b": "2", "c": "3"})
	require.NoError(t, err)
	assert.Equal(t, "1 and 2 and 3", out)

	_, err = tpl.RenderStrict(template.Vars{"a": "1"})
	var unresolved *template.UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"b", "c"}, unresolved.Names)
	assert.Contains(t, err.Error(), "b, c")
}

func TestRenderReusesParsedTemplate(t *testing.T) {
	tpl := template.Parse("Hi {who}")
	assert.Equal(t, "Hi A", tpl.Render(template.Vars{"who": "A"}))
	assert.Equal(t, "Hi B", tpl.Render(template.Vars{"who": "B"}))
}
