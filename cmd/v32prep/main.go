// v32prep runs the assembler preprocessor standalone: it expands
// includes, definitions and conditionals in one source file and prints
// the resulting token stream.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/v32emu/v32emu/internal/asm/lexer"
	"github.com/v32emu/v32emu/internal/asm/preprocessor"
	"github.com/v32emu/v32emu/internal/asm/token"
)

func main() {
	outPath := flag.String("o", "", "write token stream to this file instead of stdout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: v32prep [-o out] <input.asm>\n")
		os.Exit(2)
	}
	inputPath := flag.Arg(0)

	p := preprocessor.New(lexer.TokenizeFile)
	tokens, err := p.ProcessFile(inputPath)
	for _, w := range p.Warnings() {
		fmt.Fprintln(os.Stderr, w)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		out = f
	}
	w := bufio.NewWriter(out)
	defer w.Flush()
	for _, t := range tokens {
		switch t.Kind {
		case token.StartOfFile, token.EndOfFile:
			fmt.Fprintf(w, "%s: %s\n", t.Loc, t.Kind)
		default:
			fmt.Fprintf(w, "%s: %s %q\n", t.Loc, t.Kind, t.Text)
		}
	}
}
