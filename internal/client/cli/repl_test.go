package cli

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubExec records which commands the REPL dispatched.
type stubExec struct {
	loggedIn bool
	calls    []string
}

func (s *stubExec) record(name string) error {
	s.calls = append(s.calls, name)
	return nil
}

func (s *stubExec) isLoggedIn() bool                                { return s.loggedIn }
func (s *stubExec) Register(ctx context.Context) error              { return s.record("register") }
func (s *stubExec) Login(ctx context.Context) error                 { return s.record("login") }
func (s *stubExec) Logout(ctx context.Context) error                { return s.record("logout") }
func (s *stubExec) Board(ctx context.Context) error                 { return s.record("board") }
func (s *stubExec) Add(ctx context.Context) error                   { return s.record("add") }
func (s *stubExec) Show(ctx context.Context, args []string) error   { return s.record("show") }
func (s *stubExec) Move(ctx context.Context, args []string) error   { return s.record("move") }
func (s *stubExec) Done(ctx context.Context, args []string) error   { return s.record("done") }
func (s *stubExec) Archive(ctx context.Context, args []string) error { return s.record("archive") }
func (s *stubExec) Share(ctx context.Context, args []string) error  { return s.record("share") }
func (s *stubExec) Comment(ctx context.Context, args []string) error { return s.record("comment") }
func (s *stubExec) Attach(ctx context.Context, args []string) error { return s.record("attach") }
func (s *stubExec) Fetch(ctx context.Context, args []string) error  { return s.record("fetch") }
func (s *stubExec) Search(ctx context.Context, args []string) error { return s.record("search") }
func (s *stubExec) Sync(ctx context.Context) error                  { return s.record("sync") }

func runScript(t *testing.T, exec *stubExec, script string) []string {
	t.Helper()

	var out []string
	oldPrintln := printlnFn
	printlnFn = func(a ...any) (int, error) {
		for _, v := range a {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return 0, nil
	}
	defer func() { printlnFn = oldPrintln }()

	scanner := bufio.NewScanner(strings.NewReader(script))
	runREPL(context.Background(), exec, func() string { return "(test)" }, scanner)
	return out
}

func TestREPL_DispatchesCommands(t *testing.T) {
	exec := &stubExec{loggedIn: true}
	runScript(t, exec, "board\nadd\nmove t1 done 0\ndone t1\nfetch t1 a.txt\nsync\nexit\n")

	assert.Equal(t, []string{"board", "add", "move", "done", "fetch", "sync"}, exec.calls)
}

func TestREPL_ShortBoardAlias(t *testing.T) {
	exec := &stubExec{loggedIn: true}
	runScript(t, exec, "b\nquit\n")
	assert.Equal(t, []string{"board"}, exec.calls)
}

func TestREPL_UnknownCommand(t *testing.T) {
	exec := &stubExec{}
	out := runScript(t, exec, "frobnicate\nexit\n")

	assert.Empty(t, exec.calls)
	assert.Contains(t, out, "Unknown command: frobnicate")
}

func TestREPL_HelpDependsOnSession(t *testing.T) {
	out := runScript(t, &stubExec{}, "help\nexit\n")
	assert.Contains(t, out, "Available commands: register, login, exit")

	out = runScript(t, &stubExec{loggedIn: true}, "help\nexit\n")
	found := false
	for _, line := range out {
		if strings.Contains(line, "board") && strings.Contains(line, "logout") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestREPL_ExitsOnEOF(t *testing.T) {
	exec := &stubExec{}
	runScript(t, exec, "board\n")
	assert.Equal(t, []string{"board"}, exec.calls)
}

func TestREPL_SkipsBlankLines(t *testing.T) {
	exec := &stubExec{}
	runScript(t, exec, "\n\nlogin\nexit\n")
	assert.Equal(t, []string{"login"}, exec.calls)
}
