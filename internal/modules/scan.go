package modules

import (
	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

type token struct {
	tt    js.TokenType
	data  []byte
	start int
	end   int
}

// scanner walks the significant tokens of a script. A slash is read as a
// regular expression literal wherever an expression may start.
type scanner struct {
	input *parse.Input
	lexer *js.Lexer
	// prev is the type of the last token returned and before the one
	// preceding it.
	prev   js.TokenType
	before js.TokenType
	back   *token
}

func newScanner(text string) *scanner {
	input := parse.NewInputString(text)
	return &scanner{
		input:  input,
		lexer:  js.NewLexer(input),
		prev:   js.ErrorToken,
		before: js.ErrorToken,
	}
}

// next returns the next token that is not whitespace, a line break or a
// comment. It reports false at the end of the input.
func (s *scanner) next() (token, bool) {
	if s.back != nil {
		tok := *s.back
		s.back = nil
		return tok, true
	}
	for {
		tt, data := s.lexer.Next()
		switch tt {
		case js.ErrorToken:
			if len(data) == 0 {
				return token{}, false
			}
		case js.WhitespaceToken, js.LineTerminatorToken, js.CommentToken, js.CommentLineTerminatorToken:
			continue
		case js.DivToken, js.DivEqToken:
			if startsExpression(s.prev) {
				rtt, rdata := s.lexer.RegExp()
				if rtt != js.RegExpToken {
					// Unterminated; the bytes are folded into the next token.
					continue
				}
				tt, data = rtt, rdata
			}
		}
		end := s.input.Offset()
		s.before, s.prev = s.prev, tt
		return token{tt: tt, data: data, start: end - len(data), end: end}, true
	}
}

// unread pushes tok back so the following next returns it again.
func (s *scanner) unread(tok token) {
	s.back = &tok
}

// keyword reports whether the token just returned is a keyword rather than a
// property name such as x.import.
func (s *scanner) keyword() bool {
	return s.before != js.DotToken && s.before != js.OptChainToken
}

// startsExpression reports whether a slash following a token of type prev
// begins a regular expression rather than a division.
func startsExpression(prev js.TokenType) bool {
	switch prev {
	case js.ErrorToken, js.TemplateStartToken, js.TemplateMiddleToken:
		return true
	case js.CloseParenToken, js.CloseBracketToken, js.IncrToken, js.DecrToken,
		js.ThisToken, js.SuperToken, js.NullToken, js.TrueToken, js.FalseToken:
		return false
	}
	return js.IsPunctuator(prev) || js.IsOperator(prev) || js.IsReservedWord(prev)
}

// unquote strips the quotes of a string token.
func unquote(tok token) string {
	return string(tok.data[1 : len(tok.data)-1])
}
