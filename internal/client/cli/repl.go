package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-shellwords"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

const helpText = `Available commands:
  add [-a audio.wav] [-c category] [-t text] [-p photo]... [-g tag]... <title>
  photo <id> <path>...
  tag <id> <tag>...
  (l)ist
  show <id>
  retry <id>
  delete <id>
  status
  exit`

// execIface defines the command surface the REPL dispatches to.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Add(ctx context.Context, args []string) error
	Photo(ctx context.Context, args []string) error
	Tag(ctx context.Context, args []string) error
	List(ctx context.Context, args []string) error
	Show(ctx context.Context, args []string) error
	Retry(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
}

// scanLines feeds the lines of r into the returned channel until EOF or ctx
// is done. Reading happens on its own goroutine so that the REPL can stop
// on cancellation while the terminal read is still blocked.
func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// runREPL reads commands from lines and dispatches them to a.
//
// Each line is split with shell quoting rules, so titles and paths with
// spaces can be quoted. Command errors are printed and the loop goes on.
// The loop exits when lines is closed, ctx is done or the user types
// "exit" or "quit".
func runREPL(ctx context.Context, a execIface, promptFn func() string, lines <-chan string) {
	for {
		if p := promptFn(); p != "" {
			printlnFn(p)
		}

		var (
			line string
			ok   bool
		)
		select {
		case line, ok = <-lines:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}

		parts, err := shellwords.Parse(strings.TrimSpace(line))
		if err != nil {
			printlnFn("Cannot parse command:", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			printlnFn(helpText)
			continue

		case "exit", "quit":
			printlnFn("Bye!")
			return
		}

		var run func(context.Context, []string) error
		switch cmd {
		case "add":
			run = a.Add
		case "photo":
			run = a.Photo
		case "tag":
			run = a.Tag
		case "l", "list":
			run = a.List
		case "show":
			run = a.Show
		case "retry":
			run = a.Retry
		case "delete", "rm":
			run = a.Delete
		case "status":
			run = a.Status
		default:
			printlnFn("Unknown command:", cmd)
			continue
		}

		if err := run(ctx, args); err != nil {
			printlnFn("Error:", err)
		}
	}
}
