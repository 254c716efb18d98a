// Package template renders step prompt templates.
//
// Placeholders use the {name} syntax, where name is the exact text between
// the braces. Rendering is a single pass: substituted values are never
// scanned again, and names without a binding are left in place unless
// strict rendering is requested.
//
// A backslash escapes a brace or another backslash: \{ and \} render
// literal braces and \\ renders one backslash, so C:\\{dir} places a
// backslash before a substituted value. Any other backslash is literal.
package template
