// Package rustsyntax reads Rust source as emitted by `cargo expand`. Parse
// builds a tree-sitter syntax tree to find top-level items and recognize
// compiler-injected prelude boilerplate; a small lossless tokenizer drives
// the canonical layout applied by Print and Reindent.
package rustsyntax

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Kind classifies a token.
type Kind int

const (
	Ident Kind = iota
	Lifetime
	Literal
	Punct
	Open
	Close
	Comment
	DocComment
)

func (k Kind) String() string {
	switch k {
	case Ident:
		return "ident"
	case Lifetime:
		return "lifetime"
	case Literal:
		return "literal"
	case Punct:
		return "punct"
	case Open:
		return "open"
	case Close:
		return "close"
	case Comment:
		return "comment"
	case DocComment:
		return "doc comment"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a lexeme with its byte span and line range (both zero-based).
type Token struct {
	Kind     Kind
	Text     string
	Start    int
	End      int
	Line     int
	EndLine  int
	InnerDoc bool
}

// Trivia reports whether t carries no syntactic meaning.
func (t Token) Trivia() bool {
	return t.Kind == Comment
}

// SyntaxError describes where lexing or parsing stopped.
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line+1, e.Message)
}

type lexer struct {
	src    string
	pos    int
	line   int
	tokens []Token
}

// Tokenize splits src into tokens. Delimiter balance is not checked here.
func Tokenize(src string) ([]Token, error) {
	l := &lexer{src: src}
	for {
		l.skipWhitespace()
		if l.pos >= len(l.src) {
			return l.tokens, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		if r == '\n' {
			l.line++
		}
		l.pos += size
	}
}

func (l *lexer) emit(kind Kind, start, startLine int) {
	l.tokens = append(l.tokens, Token{
		Kind:    kind,
		Text:    l.src[start:l.pos],
		Start:   start,
		End:     l.pos,
		Line:    startLine,
		EndLine: l.line,
	})
}

func (l *lexer) fail(line int, format string, args ...any) error {
	return &SyntaxError{Line: line, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() error {
	start, startLine := l.pos, l.line
	c := l.src[l.pos]

	switch {
	case c == '/' && l.peek(1) == '/':
		l.lineComment(start, startLine)
		return nil
	case c == '/' && l.peek(1) == '*':
		return l.blockComment(start, startLine)
	case c == '"':
		return l.quoted(start, startLine, 1)
	case c == '\'':
		return l.quote(start, startLine)
	case c == 'r' && (l.peek(1) == '"' || (l.peek(1) == '#' && l.rawStringAhead(1))):
		return l.rawString(start, startLine, 1)
	case (c == 'b' || c == 'c') && l.peek(1) == 'r' && (l.peek(2) == '"' || l.peek(2) == '#'):
		return l.rawString(start, startLine, 2)
	case (c == 'b' || c == 'c') && l.peek(1) == '"':
		return l.quoted(start, startLine, 2)
	case c == 'b' && l.peek(1) == '\'':
		l.pos++
		return l.charLiteral(start, startLine)
	case c == 'r' && l.peek(1) == '#' && isIdentStart(l.peekRune(2)):
		l.pos += 2
		l.ident()
		l.emit(Ident, start, startLine)
		return nil
	case isIdentStart(l.peekRune(0)):
		l.ident()
		l.emit(Ident, start, startLine)
		return nil
	case c >= '0' && c <= '9':
		l.number()
		l.emit(Literal, start, startLine)
		return nil
	case c == '(' || c == '[' || c == '{':
		l.pos++
		l.emit(Open, start, startLine)
		return nil
	case c == ')' || c == ']' || c == '}':
		l.pos++
		l.emit(Close, start, startLine)
		return nil
	}

	_, size := utf8.DecodeRuneInString(l.src[l.pos:])
	l.pos += size
	l.emit(Punct, start, startLine)
	return nil
}

func (l *lexer) peekRune(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return utf8.RuneError
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+offset:])
	return r
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentContinue(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (l *lexer) ident() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !isIdentContinue(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) number() {
	hex := strings.HasPrefix(l.src[l.pos:], "0x") || strings.HasPrefix(l.src[l.pos:], "0X")
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
			l.pos++
		case c == '.' && l.peek(1) >= '0' && l.peek(1) <= '9':
			l.pos++
		case (c == '+' || c == '-') && !hex && (l.src[l.pos-1] == 'e' || l.src[l.pos-1] == 'E'):
			l.pos++
		default:
			return
		}
	}
}

func (l *lexer) lineComment(start, startLine int) {
	end := strings.IndexByte(l.src[l.pos:], '\n')
	if end < 0 {
		l.pos = len(l.src)
	} else {
		l.pos += end
	}
	text := l.src[start:l.pos]
	kind := Comment
	inner := strings.HasPrefix(text, "//!")
	if inner || (strings.HasPrefix(text, "///") && !strings.HasPrefix(text, "////")) {
		kind = DocComment
	}
	l.emit(kind, start, startLine)
	l.tokens[len(l.tokens)-1].InnerDoc = inner
}

func (l *lexer) blockComment(start, startLine int) error {
	depth := 0
	for l.pos < len(l.src) {
		switch {
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			depth++
			l.pos += 2
		case strings.HasPrefix(l.src[l.pos:], "*/"):
			depth--
			l.pos += 2
			if depth == 0 {
				text := l.src[start:l.pos]
				kind := Comment
				inner := strings.HasPrefix(text, "/*!")
				if inner || (strings.HasPrefix(text, "/**") && !strings.HasPrefix(text, "/***") && text != "/**/") {
					kind = DocComment
				}
				l.emit(kind, start, startLine)
				l.tokens[len(l.tokens)-1].InnerDoc = inner
				return nil
			}
		default:
			if l.src[l.pos] == '\n' {
				l.line++
			}
			l.pos++
		}
	}
	return l.fail(startLine, "unterminated block comment")
}

// quoted lexes a string literal whose opening quote is prefix bytes in.
func (l *lexer) quoted(start, startLine, prefix int) error {
	l.pos += prefix
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			if l.peek(1) == '\n' {
				l.line++
			}
			l.pos += 2
		case '"':
			l.pos++
			l.suffix()
			l.emit(Literal, start, startLine)
			return nil
		case '\n':
			l.line++
			l.pos++
		default:
			l.pos++
		}
	}
	return l.fail(startLine, "unterminated string literal")
}

func (l *lexer) rawStringAhead(offset int) bool {
	i := l.pos + offset
	for i < len(l.src) && l.src[i] == '#' {
		i++
	}
	return i < len(l.src) && l.src[i] == '"'
}

func (l *lexer) rawString(start, startLine, prefix int) error {
	l.pos += prefix
	hashes := 0
	for l.pos < len(l.src) && l.src[l.pos] == '#' {
		hashes++
		l.pos++
	}
	if l.pos >= len(l.src) || l.src[l.pos] != '"' {
		return l.fail(startLine, "malformed raw string literal")
	}
	l.pos++
	terminator := "\"" + strings.Repeat("#", hashes)
	end := strings.Index(l.src[l.pos:], terminator)
	if end < 0 {
		return l.fail(startLine, "unterminated raw string literal")
	}
	l.line += strings.Count(l.src[l.pos:l.pos+end], "\n")
	l.pos += end + len(terminator)
	l.suffix()
	l.emit(Literal, start, startLine)
	return nil
}

// quote distinguishes a char literal from a lifetime or label.
func (l *lexer) quote(start, startLine int) error {
	if l.peek(1) == '\\' {
		return l.charLiteral(start, startLine)
	}
	r, size := utf8.DecodeRuneInString(l.src[l.pos+1:])
	if l.pos+1+size < len(l.src) && l.src[l.pos+1+size] == '\'' {
		return l.charLiteral(start, startLine)
	}
	if isIdentStart(r) {
		l.pos++
		l.ident()
		l.emit(Lifetime, start, startLine)
		return nil
	}
	return l.charLiteral(start, startLine)
}

func (l *lexer) charLiteral(start, startLine int) error {
	l.pos++ // opening quote
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
		case '\'':
			l.pos++
			l.suffix()
			l.emit(Literal, start, startLine)
			return nil
		case '\n':
			return l.fail(startLine, "unterminated character literal")
		default:
			l.pos++
		}
	}
	return l.fail(startLine, "unterminated character literal")
}

// suffix consumes a literal suffix such as the `u8` of `b'a'u8`.
func (l *lexer) suffix() {
	if isIdentStart(l.peekRune(0)) {
		l.ident()
	}
}
