package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	serval "github.com/serval-lang/serval"
)

const (
	appName     = "serval"
	historyFile = ".serval_history"
	promptMain  = ">> "
	promptCont  = ".. "
)

var banner = fmt.Sprintf("Serval %s REPL\nCtrl+C cancels input, Ctrl+D exits. Type :quit to exit.", serval.Version)

func red(s string) string   { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string { return "\x1b[32m" + s + "\x1b[0m" }
func blue(s string) string  { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch cmd := os.Args[1]; cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "tokens":
		os.Exit(cmdTokens(os.Args[2:]))
	case "check":
		os.Exit(cmdCheck(os.Args[2:]))
	case "get":
		os.Exit(cmdGet(os.Args[2:]))
	case "version":
		fmt.Println(serval.Version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`Serval %s

Usage:
  %s run <file.svl>        Run a script.
  %s repl                  Start the REPL.
  %s tokens <file.svl>     Print the token stream.
  %s check <file.svl>      Parse only; report errors and warnings.
  %s get                   Fetch dependencies declared in %s.
  %s version               Print the version.

`, serval.Version, appName, appName, appName, appName, appName, serval.ManifestFileName, appName)
}

// -----------------------------------------------------------------------------
// run
// -----------------------------------------------------------------------------

func cmdRun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s run <file.svl>\n", appName)
		return 2
	}
	file := args[0]
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, file, err)
		return 1
	}

	prog, err := serval.ParseSource(string(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, red(serval.WrapErrorWithName(err, file, string(src)).Error()))
		return 1
	}

	resolver := serval.NewResolver(filepath.Dir(file))
	imports, err := resolver.ResolveImports(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}

	rt := serval.NewRuntime()
	txman, err := serval.TxManagerFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	rt.SetTransactionManager(txman)
	defer txman.Close()

	result, err := rt.ExecuteProgram(prog, imports)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(serval.WrapErrorWithName(err, file, string(src)).Error()))
		return 1
	}
	if result != nil {
		fmt.Println(blue(result.String()))
	}
	return 0
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

func cmdRepl(_ []string) int {
	fmt.Println(banner)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	rt := serval.NewRuntime()

	for {
		code, ok := readByParseProbe(ln, promptMain, promptCont)
		if !ok {
			fmt.Println()
			break
		}

		trimmed := strings.TrimSpace(code)
		if strings.HasPrefix(trimmed, ":") {
			switch strings.ToLower(trimmed) {
			case ":quit":
				return 0
			default:
				fmt.Println("unknown command. Type :quit to exit.")
			}
			continue
		}
		if trimmed == "" {
			continue
		}

		result, err := rt.ExecuteSource(code)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(serval.WrapErrorWithSource(err, code).Error()))
			continue
		}
		if result != nil {
			fmt.Println(blue(result.String()))
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
	}
	return 0
}

// readByParseProbe accumulates lines until the buffer parses or fails with a
// definite (non-continuation) error. A parse error at end of input means the
// construct is still open, so keep reading.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder
	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		_, perr := serval.ParseSource(src)
		if perr == nil {
			return src, true
		}
		if isIncomplete(perr, src) {
			continue
		}
		return src, true
	}
}

// isIncomplete guesses whether the parse failed only because input ended.
func isIncomplete(err error, src string) bool {
	var pe *serval.ParseError
	if !errors.As(err, &pe) {
		return false
	}
	lines := strings.Split(src, "\n")
	return pe.Line >= len(lines) && strings.Contains(pe.Msg, "end of input")
}

// -----------------------------------------------------------------------------
// tokens / check
// -----------------------------------------------------------------------------

func cmdTokens(args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s tokens <file.svl>\n", appName)
		return 2
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, args[0], err)
		return 1
	}
	toks, err := serval.Tokenize(string(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, red(serval.WrapErrorWithName(err, args[0], string(src)).Error()))
		return 1
	}
	for _, t := range toks {
		fmt.Printf("%3d:%-3d %-18s %q\n", t.Line, t.Col, t.Type, t.Lexeme)
	}
	return 0
}

func cmdCheck(args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s check <file.svl>\n", appName)
		return 2
	}
	file := args[0]
	src, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, file, err)
		return 1
	}
	prog, err := serval.ParseSource(string(src))
	if err != nil {
		fmt.Fprintln(os.Stderr, red(serval.WrapErrorWithName(err, file, string(src)).Error()))
		return 1
	}
	for _, w := range serval.CollectWarnings(prog) {
		fmt.Println(green(fmt.Sprintf("warning: line %d: %s", w.Line, w.Message)))
	}
	fmt.Printf("%s: ok (%d top-level statements)\n", file, len(prog.Statements))
	return 0
}

// -----------------------------------------------------------------------------
// get
// -----------------------------------------------------------------------------

func cmdGet(_ []string) int {
	m, err := serval.LoadManifest(serval.ManifestFileName)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	if err := serval.FetchDependencies(m, "."); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	for _, name := range m.DependencyNames() {
		fmt.Printf("fetched %s (%s)\n", name, m.Dependencies[name].Git)
	}
	return 0
}
