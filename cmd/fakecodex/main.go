// fakecodex is a stand-in for the Codex CLI used by integration tests. It
// speaks just enough of the real CLI's surface to exercise bounce: a banner
// with a session id, a canned reply in exec mode, and a line-reader loop
// when spawned without the exec subcommand (the interactive TUI path).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

func main() {
	hang := flag.Duration("hang", 0, "Sleep this long before replying")
	reply := flag.String("reply", "All checks passed. Ship it.", "Canned reply text")
	exitCode := flag.Int("exit", 0, "Exit code after replying (exec mode only)")
	argvOut := flag.String("argv-out", "", "Write the remaining argv to this file, one token per line")

	// The real CLI's flags, accepted and ignored. The interactive form has
	// no exec subcommand in front of them, so parsing must not choke.
	flag.Bool("full-auto", false, "Ignored")
	flag.Bool("skip-git-repo-check", false, "Ignored")
	flag.String("sandbox", "", "Ignored")
	flag.Bool("search", false, "Ignored")
	flag.String("cd", "", "Ignored")
	flag.String("c", "", "Ignored")
	flag.Parse()

	args := flag.Args()

	if *argvOut != "" {
		content := strings.Join(args, "\n") + "\n"
		if err := os.WriteFile(*argvOut, []byte(content), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "fakecodex: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("fakecodex v0.1.0 (test fixture)\n")
	fmt.Printf("session id: %s\n", uuid.New().String())

	if len(args) > 0 && args[0] == "exec" {
		runExec(args, *hang, *reply, *exitCode)
		return
	}
	runInteractive(*hang, *reply)
}

// runExec mimics a one-shot batch invocation: echo the prompt, think,
// reply, exit.
func runExec(args []string, hang time.Duration, reply string, exitCode int) {
	prompt := ""
	if len(args) > 1 {
		prompt = args[len(args)-1]
	}

	if hang > 0 {
		time.Sleep(hang)
	}

	fmt.Printf("> %s\n\n", prompt)
	fmt.Println(reply)
	os.Exit(exitCode)
}

// runInteractive mimics the TUI: each line read from stdin is a submitted
// prompt, answered with a short streamed reply. The PTY slave runs in
// canonical mode, so the editor-reset keystrokes bounce types before a
// prompt (ESC, Ctrl+U) are absorbed by the kernel's line editing and never
// reach the scanner.
func runInteractive(hang time.Duration, reply string) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		if hang > 0 {
			time.Sleep(hang)
		}
		fmt.Printf("> %s\n", prompt)
		// Stream the reply in pieces so idle-based collection sees the
		// buffer grow and then settle.
		fmt.Println("thinking...")
		time.Sleep(50 * time.Millisecond)
		fmt.Println(reply)
	}
}
