package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	lox "github.com/xirelogy/go-lox"
)

const continuePrompt = "... "

// lineReader is the part of liner the prompt loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

func runREPL(cmd *cobra.Command, opts *cliOptions) error {
	interp, err := opts.newInterpreter(cmd)
	if err != nil {
		return err
	}
	defer interp.Close()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := interp.Config().HistoryPath()
	if histPath != "" {
		if f, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(f)
			_ = f.Close()
		}
		defer func() {
			if f, err := os.Create(histPath); err == nil {
				_, _ = ln.WriteHistory(f)
				_ = f.Close()
			}
		}()
	}

	repl(interp, ln, interp.Config().REPL.Prompt, cmd.ErrOrStderr())
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

// repl reads and runs entries until end of input. Errors are reported and
// the session continues with its globals intact.
func repl(interp *lox.Interpreter, ln lineReader, prompt string, stderr io.Writer) {
	for {
		src, ok := readEntry(interp, ln, prompt)
		if !ok {
			return
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))
		if err := interp.RunSource(src); err != nil {
			fmt.Fprintln(stderr, err)
		}
	}
}

// readEntry keeps prompting while the input so far only fails to compile
// because it ends early. A blank continuation line submits it as is, and
// Ctrl-C during continuation discards it.
func readEntry(interp *lox.Interpreter, ln lineReader, prompt string) (string, bool) {
	var b strings.Builder
	for {
		p := prompt
		if b.Len() > 0 {
			p = continuePrompt
		}
		line, err := ln.Prompt(p)
		switch {
		case errors.Is(err, liner.ErrPromptAborted) && b.Len() > 0:
			b.Reset()
			continue
		case errors.Is(err, io.EOF) && b.Len() > 0:
			return b.String(), true
		case err != nil:
			return "", false
		}

		if b.Len() > 0 {
			if strings.TrimSpace(line) == "" {
				return b.String(), true
			}
			b.WriteByte('\n')
		}
		b.WriteString(line)

		if !incomplete(interp, b.String()) {
			return b.String(), true
		}
	}
}

// incomplete reports whether src fails to compile only because more input
// is expected.
func incomplete(interp *lox.Interpreter, src string) bool {
	prog, err := interp.Compile(src)
	if err == nil {
		prog.Release()
		return false
	}
	var cerr *lox.CompileError
	if !errors.As(err, &cerr) {
		return false
	}
	for _, d := range cerr.Diagnostics {
		if !strings.Contains(d, "Error at end:") {
			return false
		}
	}
	return true
}
