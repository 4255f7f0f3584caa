package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with
// a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a
// lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Board(ctx context.Context) error
	Add(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	Move(ctx context.Context, args []string) error
	Done(ctx context.Context, args []string) error
	Archive(ctx context.Context, args []string) error
	Share(ctx context.Context, args []string) error
	Comment(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Fetch(ctx context.Context, args []string) error
	Search(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
}

// runREPL starts a read-eval-print loop over the kanban commands.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers print their
// own messages. This keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("kanban %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: (b)oard, add, show, move, done, archive, share, comment, attach, fetch, search, sync, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "b", "board":
			_ = a.Board(ctx)

		case "add":
			_ = a.Add(ctx)

		case "show":
			_ = a.Show(ctx, args)

		case "move":
			_ = a.Move(ctx, args)

		case "done":
			_ = a.Done(ctx, args)

		case "archive":
			_ = a.Archive(ctx, args)

		case "share":
			_ = a.Share(ctx, args)

		case "comment":
			_ = a.Comment(ctx, args)

		case "attach":
			_ = a.Attach(ctx, args)

		case "fetch":
			_ = a.Fetch(ctx, args)

		case "search":
			_ = a.Search(ctx, args)

		case "sync":
			_ = a.Sync(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command: " + cmd)
		}
	}
}
