package modules

import (
	"strings"

	"github.com/tdewolff/parse/v2/js"
)

// ImportStatement is one static import found in module text.
type ImportStatement struct {
	// Start and End delimit the whole statement, including a trailing
	// semicolon when one is present.
	Start int
	End   int
	// Text is the statement without its trailing semicolon.
	Text   string
	Source string
	// SourceStart and SourceEnd delimit the specifier inside its quotes.
	SourceStart int
	SourceEnd   int
}

// ParseImports returns the static import statements of text in source
// order. Dynamic import() calls, import.meta, and anything inside strings,
// template literals, regular expressions or comments are ignored.
func ParseImports(text string) []ImportStatement {
	var imports []ImportStatement
	s := newScanner(text)
	for {
		tok, ok := s.next()
		if !ok {
			return imports
		}
		if tok.tt != js.ImportToken || !s.keyword() {
			continue
		}
		if stmt, ok := s.importStatement(text, tok.start); ok {
			imports = append(imports, stmt)
		}
	}
}

// importStatement reads the rest of a statement whose import keyword starts
// at start.
func (s *scanner) importStatement(text string, start int) (ImportStatement, bool) {
	tok, ok := s.next()
	if !ok {
		return ImportStatement{}, false
	}
	switch tok.tt {
	case js.StringToken:
		return s.finishImport(text, start, tok), true
	case js.OpenParenToken, js.DotToken:
		return ImportStatement{}, false
	}

	for ; ok; tok, ok = s.next() {
		switch tok.tt {
		case js.FromToken:
			specifier, ok := s.next()
			if !ok {
				return ImportStatement{}, false
			}
			if specifier.tt == js.StringToken {
				return s.finishImport(text, start, specifier), true
			}
			// import { from } from "x"
			s.unread(specifier)
		case js.SemicolonToken, js.ImportToken, js.ErrorToken:
			s.unread(tok)
			return ImportStatement{}, false
		}
	}
	return ImportStatement{}, false
}

// finishImport completes the statement at its specifier, taking in import
// attributes and a semicolon on the same line.
func (s *scanner) finishImport(text string, start int, specifier token) ImportStatement {
	stmt := ImportStatement{
		Start:       start,
		Source:      unquote(specifier),
		SourceStart: specifier.start + 1,
		SourceEnd:   specifier.end - 1,
	}
	end := specifier.end

	tok, ok := s.next()
	if ok && (tok.tt == js.WithToken || tok.tt == js.IdentifierToken && string(tok.data) == "assert") {
		if attrs, ok := s.attributesEnd(); ok {
			end = attrs
		}
		tok, ok = s.next()
	}

	stmt.Text = text[start:end]
	stmt.End = end
	switch {
	case !ok:
	case tok.tt == js.SemicolonToken && !strings.ContainsAny(text[end:tok.start], "\r\n"):
		stmt.End = tok.end
	default:
		s.unread(tok)
	}
	return stmt
}

// attributesEnd reads an attribute clause { type: "json" } and returns the
// offset past its closing brace.
func (s *scanner) attributesEnd() (int, bool) {
	tok, ok := s.next()
	if !ok {
		return 0, false
	}
	if tok.tt != js.OpenBraceToken {
		s.unread(tok)
		return 0, false
	}
	for tok, ok = s.next(); ok; tok, ok = s.next() {
		if tok.tt == js.CloseBraceToken {
			return tok.end, true
		}
	}
	return 0, false
}

// ParseExports lists the names a script exports. Re-exports of a whole
// module without a namespace name are reported as "default".
func ParseExports(text string) []string {
	var names []string
	s := newScanner(text)
	for {
		tok, ok := s.next()
		if !ok {
			return names
		}
		if tok.tt == js.ExportToken && s.keyword() {
			names = append(names, s.exportNames()...)
		}
	}
}

func (s *scanner) exportNames() []string {
	tok, ok := s.next()
	if !ok {
		return nil
	}
	switch tok.tt {
	case js.DefaultToken:
		return []string{"default"}

	case js.MulToken:
		as, ok := s.next()
		if ok && as.tt == js.AsToken {
			if name, ok := s.exportedName(); ok {
				return []string{name}
			}
			return nil
		}
		if ok {
			s.unread(as)
		}
		return []string{"default"}

	case js.OpenBraceToken:
		return s.exportList()

	case js.AsyncToken:
		if tok, ok = s.next(); !ok || tok.tt != js.FunctionToken {
			if ok {
				s.unread(tok)
			}
			return nil
		}
		fallthrough
	case js.FunctionToken:
		if tok, ok = s.next(); ok && tok.tt == js.MulToken {
			tok, ok = s.next()
		}

	case js.ClassToken, js.ConstToken, js.LetToken, js.VarToken:
		tok, ok = s.next()

	default:
		s.unread(tok)
		return nil
	}

	if !ok {
		return nil
	}
	if !js.IsIdentifierName(tok.tt) {
		s.unread(tok)
		return nil
	}
	return []string{string(tok.data)}
}

// exportList reads the names of export { a, b as c, d as "e" } after its
// opening brace. The exported name is always the last one of an entry.
func (s *scanner) exportList() []string {
	var names []string
	var last string
	for tok, ok := s.next(); ok; tok, ok = s.next() {
		switch {
		case tok.tt == js.CloseBraceToken, tok.tt == js.CommaToken:
			if last != "" {
				names = append(names, last)
			}
			if tok.tt == js.CloseBraceToken {
				return names
			}
			last = ""
		case tok.tt == js.StringToken:
			last = unquote(tok)
		case js.IsIdentifierName(tok.tt):
			last = string(tok.data)
		default:
			s.unread(tok)
			return names
		}
	}
	return names
}

func (s *scanner) exportedName() (string, bool) {
	tok, ok := s.next()
	switch {
	case !ok:
		return "", false
	case tok.tt == js.StringToken:
		return unquote(tok), true
	case js.IsIdentifierName(tok.tt):
		return string(tok.data), true
	}
	s.unread(tok)
	return "", false
}
