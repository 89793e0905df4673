// Package preprocessor expands the assembler's directive layer: file
// inclusion, symbol definition and conditional sections. It consumes
// token lines from the lexer and produces the flat token stream the
// parser reads.
package preprocessor

import (
	"fmt"
	"path/filepath"

	"github.com/v32emu/v32emu/internal/asm/token"
)

// Nesting limits. Going past either almost always means a circular
// reference, so the preprocessor stops instead of spinning.
const (
	maxIncludeDepth     = 20
	maxDefinitionCycles = 10
)

// Tokenizer turns a source file into token lines. The lexer provides the
// real one; tests substitute their own.
type Tokenizer func(path string) ([]token.Line, error)

// Error is a preprocessing failure. It aborts assembly.
type Error struct {
	Loc     token.Location
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: preprocessor error: %s", e.Loc, e.Message)
}

// Warning is a diagnostic that does not stop assembly.
type Warning struct {
	Loc     token.Location
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: preprocessor warning: %s", w.Loc, w.Message)
}

// ifContext tracks one %ifdef/%ifndef frame.
type ifContext struct {
	startingLine int
	conditionMet bool
	elseFound    bool
}

// processingContext is one file being processed: its cloned token lines,
// the read position, the folder relative includes resolve against, and
// the conditional stack opened inside it.
type processingContext struct {
	lines           []token.Line
	pos             int
	referenceFolder string
	ifStack         []ifContext
}

func (c *processingContext) linesEnded() bool { return c.pos >= len(c.lines) }

func (c *processingContext) currentLine() token.Line { return c.lines[c.pos] }

func (c *processingContext) advance() {
	if c.pos < len(c.lines) {
		c.pos++
	}
}

// allIfConditionsMet reports whether every stacked conditional currently
// selects the branch being read.
func (c *processingContext) allIfConditionsMet() bool {
	for _, frame := range c.ifStack {
		met := frame.conditionMet
		if frame.elseFound {
			met = !met
		}
		if !met {
			return false
		}
	}
	return true
}

// Preprocessor owns the context stack, the shared definitions map and the
// growing output stream. One instance processes one program.
type Preprocessor struct {
	tokenize Tokenizer

	contexts    []*processingContext
	definitions map[string]token.Line
	processed   []token.Token
	warnings    []Warning
}

func New(tokenize Tokenizer) *Preprocessor {
	return &Preprocessor{tokenize: tokenize}
}

// Warnings reports the diagnostics collected by the last Process call.
func (p *Preprocessor) Warnings() []Warning { return p.warnings }

// ProcessFile tokenizes path and processes it, resolving includes
// relative to the file's folder.
func (p *Preprocessor) ProcessFile(path string) ([]token.Token, error) {
	lines, err := p.tokenize(path)
	if err != nil {
		return nil, err
	}
	return p.Process(lines, filepath.Dir(path))
}

// Process expands lines into the output token stream. referenceFolder is
// where relative includes of the top-level file resolve.
func (p *Preprocessor) Process(lines []token.Line, referenceFolder string) ([]token.Token, error) {
	p.contexts = nil
	p.definitions = make(map[string]token.Line)
	p.processed = nil
	p.warnings = nil

	p.pushContext(lines, referenceFolder)

	for len(p.contexts) > 0 {
		for {
			top := p.contexts[len(p.contexts)-1]
			if top.linesEnded() {
				break
			}
			// hold on to the context being processed: an include
			// changes the stack top, and the advance past the
			// directive line must land on this context
			if err := p.processLine(top); err != nil {
				return nil, err
			}
			top.advance()
		}
		p.contexts = p.contexts[:len(p.contexts)-1]
	}
	return p.processed, nil
}

// pushContext clones lines into a fresh context on top of the stack.
func (p *Preprocessor) pushContext(lines []token.Line, referenceFolder string) {
	cloned := make([]token.Line, len(lines))
	for i, line := range lines {
		cloned[i] = append(token.Line(nil), line...)
	}
	p.contexts = append(p.contexts, &processingContext{
		lines:           cloned,
		referenceFolder: referenceFolder,
	})
}

func (p *Preprocessor) processLine(ctx *processingContext) error {
	line := ctx.currentLine()

	// empty lines are ignored (the lexer drops them, but be safe)
	if len(line) == 0 {
		return nil
	}

	// only the outermost file keeps its markers; included files would
	// otherwise scatter start/end pairs through the stream
	if len(p.contexts) > 1 {
		if line[0].Kind == token.StartOfFile || line[0].Kind == token.EndOfFile {
			return nil
		}
	}

	lineIgnored := !ctx.allIfConditionsMet()
	lineIsDirective := line[0].IsSymbol("%")

	if !lineIsDirective {
		if lineIgnored {
			return nil
		}
		// definitions can use other definitions, so keep replacing
		// until a pass changes nothing
		cycles := 0
		for {
			replaced, changed := p.replaceDefinitions(line)
			line = replaced
			if !changed {
				break
			}
			cycles++
			if cycles > maxDefinitionCycles {
				return &Error{line[0].Loc, "definition replacement is too deep (possible circular reference)"}
			}
		}
		p.processed = append(p.processed, line...)
		return nil
	}

	// empty directives are legal; the line just vanishes
	if len(line) < 2 {
		return nil
	}
	if line[1].Kind != token.Identifier {
		return &Error{line[1].Loc, "expected identifier"}
	}
	name := line[1].Text

	// inside a false conditional only the conditional directives
	// themselves still count
	if lineIgnored {
		switch name {
		case "ifdef", "ifndef", "else", "endif":
		default:
			return nil
		}
	}

	switch name {
	case "include":
		if len(p.contexts) > maxIncludeDepth {
			return &Error{line[0].Loc, "includes are too deeply nested (possible circular references)"}
		}
		return p.processInclude(ctx, line)
	case "define":
		return p.processDefine(line)
	case "undef":
		return p.processUndef(line)
	case "ifdef":
		return p.processIf(ctx, line, false)
	case "ifndef":
		return p.processIf(ctx, line, true)
	case "else":
		return p.processElse(ctx, line)
	case "endif":
		return p.processEndif(ctx, line)
	case "error":
		return p.processMessage(line, false)
	case "warning":
		return p.processMessage(line, true)
	default:
		return &Error{line[0].Loc, fmt.Sprintf("unsupported preprocessor directive %q", name)}
	}
}

// replaceDefinitions substitutes defined identifiers in place. Inserted
// tokens are clones with their locations rewritten to the identifier they
// replace, and are not rescanned within the same pass.
func (p *Preprocessor) replaceDefinitions(line token.Line) (token.Line, bool) {
	changed := false
	out := make(token.Line, 0, len(line))
	for _, t := range line {
		if t.Kind != token.Identifier {
			out = append(out, t)
			continue
		}
		value, ok := p.definitions[t.Text]
		if !ok {
			out = append(out, t)
			continue
		}
		changed = true
		for _, vt := range value {
			vt.Loc = t.Loc
			out = append(out, vt)
		}
	}
	return out, changed
}

func (p *Preprocessor) processInclude(ctx *processingContext, line token.Line) error {
	if len(line) < 3 {
		return &Error{line[0].Loc, "include file path is missing"}
	}
	pathToken := line[2]
	if pathToken.Kind != token.String {
		return &Error{pathToken.Loc, "expected file path string"}
	}
	if len(line) > 3 {
		return &Error{line[3].Loc, "expected end of line"}
	}

	// relative includes resolve against the including file's folder
	resolved := filepath.Join(ctx.referenceFolder, pathToken.Text)
	included, err := p.tokenize(resolved)
	if err != nil {
		return &Error{pathToken.Loc, fmt.Sprintf("cannot open include file %q", pathToken.Text)}
	}
	p.pushContext(included, filepath.Dir(resolved))
	return nil
}

func (p *Preprocessor) processDefine(line token.Line) error {
	if len(line) < 3 {
		return &Error{line[0].Loc, "definition name is missing"}
	}
	if line[2].Kind != token.Identifier {
		return &Error{line[2].Loc, "expected identifier"}
	}
	name := line[2].Text

	value := make(token.Line, 0, len(line)-3)
	for _, t := range line[3:] {
		if t.Kind == token.Identifier && t.Text == name {
			return &Error{t.Loc, "a definition cannot contain itself (circular reference)"}
		}
		if t.IsSymbol("%") {
			return &Error{t.Loc, "definitions cannot contain the percent symbol (%)"}
		}
		value = append(value, t)
	}
	p.definitions[name] = value
	return nil
}

func (p *Preprocessor) processUndef(line token.Line) error {
	if len(line) < 3 {
		return &Error{line[0].Loc, "definition name is missing"}
	}
	if line[2].Kind != token.Identifier {
		return &Error{line[2].Loc, "expected identifier"}
	}
	if len(line) > 3 {
		return &Error{line[3].Loc, "expected end of line"}
	}
	delete(p.definitions, line[2].Text)
	return nil
}

func (p *Preprocessor) processIf(ctx *processingContext, line token.Line, negated bool) error {
	if len(line) < 3 {
		return &Error{line[0].Loc, "expected an identifier"}
	}
	if line[2].Kind != token.Identifier {
		return &Error{line[2].Loc, "expected identifier"}
	}
	if len(line) > 3 {
		return &Error{line[3].Loc, "expected end of line"}
	}
	_, defined := p.definitions[line[2].Text]
	ctx.ifStack = append(ctx.ifStack, ifContext{
		startingLine: line[0].Loc.Line,
		conditionMet: defined == !negated,
	})
	return nil
}

func (p *Preprocessor) processElse(ctx *processingContext, line token.Line) error {
	if len(line) > 2 {
		return &Error{line[2].Loc, "expected end of line"}
	}
	if len(ctx.ifStack) == 0 {
		return &Error{line[0].Loc, "%else with no previous %if"}
	}
	frame := &ctx.ifStack[len(ctx.ifStack)-1]
	if frame.elseFound {
		return &Error{line[0].Loc, "%else can only be used once per %if"}
	}
	frame.elseFound = true
	return nil
}

func (p *Preprocessor) processEndif(ctx *processingContext, line token.Line) error {
	if len(line) > 2 {
		return &Error{line[2].Loc, "expected end of line"}
	}
	if len(ctx.ifStack) == 0 {
		return &Error{line[0].Loc, "%endif with no previous %if"}
	}
	ctx.ifStack = ctx.ifStack[:len(ctx.ifStack)-1]
	return nil
}

func (p *Preprocessor) processMessage(line token.Line, warningOnly bool) error {
	if len(line) < 3 || line[2].Kind != token.String {
		return &Error{line[min(2, len(line)-1)].Loc, "expected a string"}
	}
	if len(line) > 3 {
		return &Error{line[3].Loc, "expected end of line"}
	}
	if warningOnly {
		p.warnings = append(p.warnings, Warning{line[0].Loc, line[2].Text})
		return nil
	}
	return &Error{line[0].Loc, line[2].Text}
}
