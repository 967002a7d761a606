// Package lang implements the query language's front end:
// a lexer producing positioned tokens, and a recursive-descent parser that
// builds an AST while clamping recursion depth to MaxParserDepth so
// adversarial input cannot exhaust the stack.
package lang
