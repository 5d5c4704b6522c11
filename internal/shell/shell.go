// Package shell implements the interactive terminal front end: a line
// reader dispatching slash commands and plain queries onto the session
// engine.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/argoview/floatchat/internal/backend"
	"github.com/argoview/floatchat/internal/logging"
	"github.com/argoview/floatchat/internal/session"
	"github.com/argoview/floatchat/internal/types"
)

// Status exposes the backend reachability flag to the prompt.
type Status interface {
	Up() bool
}

// Shell reads commands from in and writes output to out. It owns no
// state of its own; every mutation goes through the engine.
type Shell struct {
	engine *session.Manager
	status Status
	in     io.Reader
	out    io.Writer
	log    *logging.Logger
}

// New creates a shell over the given engine.
func New(engine *session.Manager, status Status, in io.Reader, out io.Writer, log *logging.Logger) *Shell {
	return &Shell{
		engine: engine,
		status: status,
		in:     in,
		out:    out,
		log:    log.Named("shell"),
	}
}

// Run reads lines until EOF, /quit, or context cancellation.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "FloatChat - ARGO ocean data assistant. Type /help for commands.")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		s.prompt()
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := s.dispatch(ctx, line); quit {
				return nil
			}
			continue
		}

		s.send(ctx, line)
	}
}

func (s *Shell) prompt() {
	mark := "?"
	if s.status.Up() {
		mark = ">"
	}
	name := "no session"
	if id := s.engine.CurrentID(); id != "" {
		for _, sess := range s.engine.Sessions() {
			if sess.ID == id {
				name = sess.Name
				break
			}
		}
	}
	fmt.Fprintf(s.out, "[%s] %s ", name, mark)
}

// dispatch handles a slash command. Returns true on /quit.
func (s *Shell) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		s.printHelp()
	case "/new":
		if id, err := s.engine.CreateNewSession(ctx, nil); err != nil {
			s.printErr(err)
		} else {
			fmt.Fprintf(s.out, "started session %s\n", id)
		}
	case "/list":
		s.printSessions()
	case "/switch":
		s.switchTo(ctx, args)
	case "/delete":
		s.deleteSession(args)
	case "/prefs":
		s.updatePrefs(ctx, args)
	case "/stats":
		stats := s.engine.Stats()
		fmt.Fprintf(s.out, "%d sessions, %d messages\n", stats.TotalSessions, stats.TotalMessages)
	case "/status":
		if s.status.Up() {
			fmt.Fprintln(s.out, "backend reachable")
		} else {
			fmt.Fprintln(s.out, "backend unreachable")
		}
	default:
		fmt.Fprintf(s.out, "unknown command %s, try /help\n", cmd)
	}
	return false
}

func (s *Shell) send(ctx context.Context, query string) {
	result, err := s.engine.SendMessage(ctx, query, nil)
	if err != nil {
		s.log.Debug("send failed", zap.Error(err))
		s.printErr(err)
		return
	}
	if result.Recovered {
		fmt.Fprintln(s.out, "(previous session expired, continued in a new one)")
	}
	fmt.Fprintln(s.out, result.Reply.Content)
}

func (s *Shell) printSessions() {
	sessions := s.engine.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(s.out, "no sessions")
		return
	}
	current := s.engine.CurrentID()
	for i, sess := range sessions {
		mark := " "
		if sess.ID == current {
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s %d. %s (%d messages)\n", mark, i+1, sess.Name, sess.MessageCount)
	}
}

// resolve maps an argument to a session id: a 1-based list index or a
// raw id.
func (s *Shell) resolve(arg string) (string, bool) {
	sessions := s.engine.Sessions()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return "", false
		}
		return sessions[n-1].ID, true
	}
	for _, sess := range sessions {
		if sess.ID == arg {
			return sess.ID, true
		}
	}
	return "", false
}

func (s *Shell) switchTo(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: /switch <number|id>")
		return
	}
	id, ok := s.resolve(args[0])
	if !ok {
		fmt.Fprintf(s.out, "no such session %q\n", args[0])
		return
	}
	if err := s.engine.SwitchToSession(ctx, id); err != nil {
		s.printErr(err)
		return
	}
	for _, msg := range s.engine.CurrentMessages() {
		fmt.Fprintf(s.out, "%s: %s\n", msg.Role, msg.Content)
	}
}

func (s *Shell) deleteSession(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: /delete <number|id>")
		return
	}
	id, ok := s.resolve(args[0])
	if !ok {
		fmt.Fprintf(s.out, "no such session %q\n", args[0])
		return
	}
	s.engine.RemoveSession(id)
	fmt.Fprintf(s.out, "removed session %s\n", id)
}

func (s *Shell) updatePrefs(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.out, "usage: /prefs key=value [key=value ...]")
		return
	}
	prefs := types.Preferences{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			fmt.Fprintf(s.out, "bad preference %q, want key=value\n", arg)
			return
		}
		prefs[key] = value
	}
	if err := s.engine.UpdatePreferences(ctx, prefs); err != nil {
		s.printErr(err)
		return
	}
	fmt.Fprintln(s.out, "preferences updated")
}

func (s *Shell) printErr(err error) {
	switch {
	case errors.Is(err, backend.ErrSessionExpired):
		fmt.Fprintln(s.out, "session expired on the backend; start a new one with /new")
	case errors.Is(err, backend.ErrTimeout):
		fmt.Fprintln(s.out, "the backend took too long to answer; try again")
	case errors.Is(err, session.ErrSendInFlight):
		fmt.Fprintln(s.out, "still waiting on the previous message")
	case errors.Is(err, session.ErrNoCurrentSession):
		fmt.Fprintln(s.out, "no active session; start one with /new")
	default:
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `commands:
  /new                 start a new session
  /list                list sessions
  /switch <n|id>       switch to a session and show its transcript
  /delete <n|id>       remove a session
  /prefs k=v [...]     update analysis preferences for the session
  /stats               local session totals
  /status              backend reachability
  /quit                exit
anything else is sent to the assistant as a question
`)
}
