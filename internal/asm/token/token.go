// Package token defines the lexical units exchanged between the assembler
// stages. Tokens are plain values: copying one is cloning it, and every
// holder owns its copies outright.
package token

import "fmt"

// Location is a token's origin in source text.
type Location struct {
	File string
	Line int
}

func (l Location) String() string { return fmt.Sprintf("%s:%d", l.File, l.Line) }

// Kind classifies a token.
type Kind int

const (
	// StartOfFile and EndOfFile frame each tokenized file.
	StartOfFile Kind = iota
	EndOfFile
	Identifier
	Integer
	Float
	String
	Symbol
)

var kindNames = [...]string{
	StartOfFile: "start-of-file",
	EndOfFile:   "end-of-file",
	Identifier:  "identifier",
	Integer:     "integer",
	Float:       "float",
	String:      "string",
	Symbol:      "symbol",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Token is one lexical unit. Text carries the identifier name, the
// literal's spelling (string literals are stored unquoted), or the symbol
// itself.
type Token struct {
	Kind Kind
	Text string
	Loc  Location
}

// Line is one source line's tokens. File marker lines hold exactly the
// marker token.
type Line []Token

// IsSymbol reports whether t is the given punctuation symbol.
func (t Token) IsSymbol(s string) bool { return t.Kind == Symbol && t.Text == s }
