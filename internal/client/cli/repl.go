package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/grpc/status"
)

var (
	errUsage   = errors.New("usage")
	errUnknown = errors.New("unknown command")
)

const helpText = `Commands:
  vault <id> | case <id>          select the tree to browse
  pwd                             print the current folder
  cd <path>                       change folder ("..", relative or absolute)
  ls [path]                       list a folder
  recent [n]                      newest files first
  describe <id>                   show one file or folder
  url <id>                        download URL of a file
  associate <ids> <case-ids>      link vault files to cases (comma separated)
  disassociate <id> <case-ids>    unlink a vault file from cases
  execution <folder> [id]         register an execution for the vault
  exit | quit`

func (a *App) getStatus() string {
	s := ""
	if a.owner.ID != "" {
		s = fmt.Sprintf("%s:%s %s ", a.owner.Kind, a.owner.ID, a.cwd)
	}
	if m := a.Mode(); m != "" {
		s += string(m)
	}
	s = strings.TrimSpace(s)
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// runREPL reads commands from in until EOF, "exit" or "quit". Command
// errors are printed and the loop carries on.
func (a *App) runREPL(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(a.out, "evidence %s> ", a.getStatus())
		if !scanner.Scan() {
			fmt.Fprintln(a.out)
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd, args := parts[0], parts[1:]
		if cmd == "exit" || cmd == "quit" {
			fmt.Fprintln(a.out, "Bye!")
			return
		}
		if err := a.execute(ctx, cmd, args); err != nil {
			fmt.Fprintln(a.out, errorText(cmd, err))
		}
	}
}

func (a *App) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Fprintln(a.out, helpText)
		return nil
	case "vault", "case":
		return a.selectOwner(cmd, args)
	case "pwd":
		fmt.Fprintln(a.out, a.cwd)
		return nil
	case "cd":
		return a.changeFolder(args)
	case "l", "ls", "list":
		return a.list(ctx, args)
	case "recent":
		return a.recent(ctx, args)
	case "describe", "show":
		return a.describe(ctx, args)
	case "url":
		return a.downloadURL(ctx, args)
	case "associate":
		return a.associate(ctx, args)
	case "disassociate":
		return a.disassociate(ctx, args)
	case "execution":
		return a.registerExecution(ctx, args)
	}
	return errUnknown
}

func errorText(cmd string, err error) string {
	if errors.Is(err, errUnknown) {
		return "Unknown command: " + cmd
	}
	if errors.Is(err, errUsage) {
		return "Usage: " + strings.TrimPrefix(err.Error(), "usage: ")
	}
	if s, ok := status.FromError(err); ok {
		return fmt.Sprintf("%s failed: %s: %s", cmd, s.Code(), s.Message())
	}
	return fmt.Sprintf("%s failed: %v", cmd, err)
}

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}
