package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn and printFn are test seams for user-facing output.
var (
	printlnFn = fmt.Println
	printFn   = fmt.Print
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Add(ctx context.Context, args []string) error
	Edit(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Pending(ctx context.Context) error
	Status(ctx context.Context) error
	Sync(ctx context.Context) error
}

const helpText = "Available commands: add [first last phone], edit [id], delete [id], (l)ist, pending, status, sync, exit"

// runREPL reads commands from reader line by line and dispatches them to a.
// The prompt, built from statusFn, is printed only when showPrompt is set.
// The loop ends on EOF, on "exit" or "quit", or once ctx is done.
//
// Errors returned by command handlers are ignored here; handlers report them
// to the user themselves.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, showPrompt bool) {
	for ctx.Err() == nil {
		if showPrompt {
			printFn(fmt.Sprintf("contacts (%s)> ", statusFn()))
		}
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}

		parts := strings.Fields(line)
		if len(parts) > 0 {
			if quit := dispatch(ctx, a, parts[0], parts[1:]); quit {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) bool {
	switch cmd {
	case "help":
		printlnFn(helpText)
	case "add":
		_ = a.Add(ctx, args)
	case "edit":
		_ = a.Edit(ctx, args)
	case "delete", "rm":
		_ = a.Delete(ctx, args)
	case "l", "list":
		_ = a.List(ctx)
	case "pending":
		_ = a.Pending(ctx)
	case "status":
		_ = a.Status(ctx)
	case "sync":
		_ = a.Sync(ctx)
	case "exit", "quit":
		printlnFn("Bye!")
		return true
	default:
		printlnFn("Unknown command:", cmd)
	}
	return false
}
