package pattern

import (
	"regexp"
	"strings"
)

var variableNameRe = regexp.MustCompile(`^[A-Z0-9_]+$`)

// Token is either a literal run of text or a {NAME} / {NAME:PARAM} placeholder.
type Token struct {
	Literal  string
	Variable bool
	Name     string
	Param    string
	HasParam bool
	Pos      int
}

// Template is a parsed pattern.
type Template struct {
	Pattern string
	Tokens  []Token
}

// Variables returns the placeholder tokens in order of appearance.
func (t *Template) Variables() []Token {
	out := make([]Token, 0, len(t.Tokens))
	for _, tok := range t.Tokens {
		if tok.Variable {
			out = append(out, tok)
		}
	}
	return out
}

// HasVariable reports whether name appears as a placeholder.
func (t *Template) HasVariable(name string) bool {
	for _, tok := range t.Tokens {
		if tok.Variable && tok.Name == name {
			return true
		}
	}
	return false
}

// tokenize splits pattern into tokens, recording structural problems on res.
// Placeholders with an empty name are kept so later checks report them.
func tokenize(pattern string, res *ValidationResult) []Token {
	var (
		tokens  []Token
		literal strings.Builder
		open    = -1
	)

	flushLiteral := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, Token{Literal: literal.String()})
			literal.Reset()
		}
	}

	for i, r := range pattern {
		switch r {
		case '{':
			if open >= 0 {
				res.AddError("nested '{' at position %d", i)
				continue
			}
			flushLiteral()
			open = i
		case '}':
			if open < 0 {
				res.AddError("unmatched '}' at position %d", i)
				continue
			}
			body := pattern[open+1 : i]
			tok := Token{Variable: true, Name: body, Pos: open}
			if idx := strings.IndexByte(body, ':'); idx >= 0 {
				tok.Name = body[:idx]
				tok.Param = body[idx+1:]
				tok.HasParam = true
			}
			tokens = append(tokens, tok)
			open = -1
		default:
			if open < 0 {
				literal.WriteRune(r)
			}
		}
	}
	if open >= 0 {
		res.AddError("unclosed '{' at position %d", open)
	}
	flushLiteral()
	return tokens
}
