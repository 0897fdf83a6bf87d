package kvlog

import (
	"fmt"
	"strings"
)

// Record maps field names to values for a single log line.
type Record map[string]string

// DecodeFunc turns one raw input line into a Record.
type DecodeFunc func(line string) (Record, error)

// Token is a raw whitespace-delimited token and its byte offset in the line.
type Token struct {
	Value string
	Pos   int
}

// TokenError reports a token without a key/value delimiter.
// It is only produced by a strict Tokenizer.
type TokenError struct {
	Token string
	Pos   int
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token %q at offset %d is not a key=value pair", e.Token, e.Pos)
}

// Lexer splits a log line into tokens. Tokens are separated by ASCII
// whitespace or commas; double-quoted spans are kept inside the surrounding
// token, separators included.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given line.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, pos: 0}
}

// NextToken returns the next token. ok is false once the input is exhausted.
func (l *Lexer) NextToken() (tok Token, ok bool) {
	l.skipDelims()

	if l.pos >= len(l.input) {
		return Token{}, false
	}

	start := l.pos
	quoted := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if quoted {
			if ch == '\\' && l.pos+1 < len(l.input) {
				l.pos += 2 // skip escaped char
				continue
			}
			if ch == '"' {
				quoted = false
			}
			l.pos++
			continue
		}
		if ch == '"' {
			quoted = true
			l.pos++
			continue
		}
		if isDelim(ch) {
			break
		}
		l.pos++
	}

	// An unterminated quote runs to the end of the line.
	return Token{Value: l.input[start:l.pos], Pos: start}, true
}

func (l *Lexer) skipDelims() {
	for l.pos < len(l.input) && isDelim(l.input[l.pos]) {
		l.pos++
	}
}

// isDelim reports token separators. Only ASCII bytes qualify, so UTF-8
// continuation bytes never split a value.
func isDelim(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\v', '\f', '\r', ',':
		return true
	}
	return false
}

// Tokenizer converts lines into Records.
//
// A token is split on its first '=' so "key=a=b" yields key "key" and
// value "a=b". Values wholly enclosed in double quotes are unquoted.
// Later duplicate keys overwrite earlier ones.
type Tokenizer struct {
	// Strict rejects tokens without '=' instead of dropping them.
	Strict bool
}

// Tokenize splits line into a Record.
func (t Tokenizer) Tokenize(line string) (Record, error) {
	rec := make(Record)
	lx := NewLexer(line)
	for {
		tok, ok := lx.NextToken()
		if !ok {
			break
		}
		key, value, found := strings.Cut(tok.Value, "=")
		if !found {
			if t.Strict {
				return nil, &TokenError{Token: tok.Value, Pos: tok.Pos}
			}
			continue
		}
		rec[key] = Unquote(value)
	}
	return rec, nil
}

// Tokenize splits line with the lenient tokenizer, dropping tokens without '='.
func Tokenize(line string) Record {
	rec, _ := Tokenizer{}.Tokenize(line)
	return rec
}

// Unquote strips the enclosing double quotes of v and resolves \" and \\.
// Any other value, including one with an unterminated quote, is returned as is.
func Unquote(v string) string {
	if len(v) < 2 || v[0] != '"' {
		return v
	}

	var b strings.Builder
	b.Grow(len(v) - 2)
	for i := 1; i < len(v); i++ {
		ch := v[i]
		switch {
		case ch == '\\' && i+1 < len(v) && (v[i+1] == '"' || v[i+1] == '\\'):
			b.WriteByte(v[i+1])
			i++
		case ch == '"':
			if i != len(v)-1 {
				// Closing quote in the middle: "a"b is not a quoted value.
				return v
			}
			return b.String()
		default:
			b.WriteByte(ch)
		}
	}
	return v
}
