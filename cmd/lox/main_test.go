package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterh/liner"
	"github.com/stretchr/testify/require"

	lox "github.com/xirelogy/go-lox"
)

func writeScript(t *testing.T, name, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(append([]string{"--config", emptyConfig(t)}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func emptyConfig(t *testing.T) string {
	t.Helper()
	return writeScript(t, "lox.toml", "")
}

func TestCLIRunFile(t *testing.T) {
	path := writeScript(t, "hello.lox", `print "hello";`)
	code, out, _ := runCLI(t, path)
	require.Equal(t, exitOK, code)
	require.Equal(t, "hello\n", out)

	code, out, _ = runCLI(t, "run", path)
	require.Equal(t, exitOK, code)
	require.Equal(t, "hello\n", out)
}

func TestCLIExitCodes(t *testing.T) {
	compileErr := writeScript(t, "bad.lox", "print ;")
	code, _, errOut := runCLI(t, compileErr)
	require.Equal(t, exitDataErr, code)
	require.Contains(t, errOut, "[line 1] Error at ';': Expect expression.")

	runtimeErr := writeScript(t, "boom.lox", "print nil + 1;")
	code, _, errOut = runCLI(t, runtimeErr)
	require.Equal(t, exitSoftware, code)
	require.Contains(t, errOut, "[line 1] in script")

	code, _, _ = runCLI(t, filepath.Join(t.TempDir(), "missing.lox"))
	require.Equal(t, exitIOErr, code)

	code, _, _ = runCLI(t, "a.lox", "b.lox")
	require.Equal(t, exitUsage, code)

	code, _, _ = runCLI(t, "--no-such-flag")
	require.Equal(t, exitUsage, code)
}

func TestCLICompileAndRunImage(t *testing.T) {
	src := writeScript(t, "prog.lox", "fun sq(x) { return x * x; } print sq(7);")
	out := filepath.Join(t.TempDir(), "prog"+lox.ImageExt)

	code, _, errOut := runCLI(t, "compile", src, "-o", out)
	require.Equal(t, exitOK, code, errOut)

	code, stdout, _ := runCLI(t, out)
	require.Equal(t, exitOK, code)
	require.Equal(t, "49\n", stdout)
}

func TestCLIDisasm(t *testing.T) {
	src := writeScript(t, "d.lox", "var a = 1; print a;")
	code, out, _ := runCLI(t, "disasm", src)
	require.Equal(t, exitOK, code)
	require.Contains(t, out, "== script ==")
	require.Contains(t, out, "OP_DEFINE_GLOBAL")
}

func TestCLITraceFlagWritesToStderr(t *testing.T) {
	src := writeScript(t, "t.lox", "print 1 + 2;")
	code, out, errOut := runCLI(t, "--trace", "--gc-stress", src)
	require.Equal(t, exitOK, code)
	require.Equal(t, "3\n", out)
	require.Contains(t, errOut, "OP_ADD")
}

// ctrlC stands for an aborted prompt in scripted input.
const ctrlC = "\x03"

type scriptedLines struct {
	lines   []string
	prompts []string
	history []string
}

func (s *scriptedLines) Prompt(p string) (string, error) {
	s.prompts = append(s.prompts, p)
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	if line == ctrlC {
		return "", liner.ErrPromptAborted
	}
	return line, nil
}

func (s *scriptedLines) AppendHistory(item string) {
	s.history = append(s.history, item)
}

func TestREPLKeepsGlobalsAndContinuesLines(t *testing.T) {
	var stdout, stderr bytes.Buffer
	interp, err := lox.New(lox.Options{Stdout: &stdout, Debug: &stderr})
	require.NoError(t, err)
	defer interp.Close()

	ln := &scriptedLines{lines: []string{
		"var x = 1;",
		"fun add(a) {",
		"  return a + x;",
		"}",
		"print add(41);",
		"print missing;",
		"print x;",
	}}
	repl(interp, ln, "> ", &stderr)

	require.Equal(t, "42\n1\n", stdout.String())
	require.Contains(t, stderr.String(), "Undefined variable 'missing'.")
	require.Equal(t, []string{"> ", "> ", "... ", "... ", "> ", "> ", "> ", "> "}, ln.prompts)
	require.Equal(t, "fun add(a) {   return a + x; }", ln.history[1])
}

func TestREPLCtrlCDiscardsContinuation(t *testing.T) {
	var stdout, stderr bytes.Buffer
	interp, err := lox.New(lox.Options{Stdout: &stdout, Debug: &stderr})
	require.NoError(t, err)
	defer interp.Close()

	ln := &scriptedLines{lines: []string{
		"fun broken() {",
		"  print \"never\";",
		ctrlC,
		"print 1;",
		ctrlC,
		"print 2;",
	}}
	repl(interp, ln, "> ", &stderr)

	require.Equal(t, "1\n", stdout.String())
	require.Empty(t, stderr.String())
	require.Equal(t, []string{"> ", "... ", "... ", "> ", "> "}, ln.prompts)
	require.Equal(t, []string{"print 1;"}, ln.history)
}
