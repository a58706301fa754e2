package usecase

import (
	"context"
	"devctl/internal/domain"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const invalidCommandReply = "error: invalid command"

// command is a registry entry backed by a handler function.
type command struct {
	name    string
	args    domain.ArgMode
	usage   string
	summary string
	aliases []string
	run     func(ctx context.Context, sess *domain.Session, arg string) (bool, error)
}

func (c *command) Name() string         { return c.name }
func (c *command) Args() domain.ArgMode { return c.args }
func (c *command) Usage() string        { return c.usage }
func (c *command) Summary() string      { return c.summary }
func (c *command) Aliases() []string    { return c.aliases }
func (c *command) Execute(ctx context.Context, sess *domain.Session, arg string) (bool, error) {
	return c.run(ctx, sess, arg)
}

type aliased interface {
	Aliases() []string
}

type summarized interface {
	Summary() string
}

// CommandHandler dispatches one frame to the matching registered command.
type CommandHandler struct {
	commands map[string]domain.Command
	ordered  []domain.Command
	withArgs []domain.Command
	invalid  func(sess *domain.Session)
}

func NewCommandHandler() *CommandHandler {
	return &CommandHandler{
		commands: make(map[string]domain.Command),
	}
}

func (h *CommandHandler) RegisterCommand(c domain.Command) {
	names := []string{c.Name()}
	if a, ok := c.(aliased); ok {
		names = append(names, a.Aliases()...)
	}
	for _, name := range names {
		h.commands[name] = c
	}
	h.ordered = append(h.ordered, c)

	if c.Args() != domain.NoArgs {
		h.withArgs = append(h.withArgs, c)
		// Longest name first, so "debug log" is never taken for "debug" plus an argument.
		sort.SliceStable(h.withArgs, func(i, j int) bool {
			return len(h.withArgs[i].Name()) > len(h.withArgs[j].Name())
		})
	}
}

// OnInvalid installs a hook that runs before an unrecognized frame is answered.
func (h *CommandHandler) OnInvalid(fn func(sess *domain.Session)) {
	h.invalid = fn
}

func (h *CommandHandler) HandleCommand(ctx context.Context, sess *domain.Session, frame []byte) (bool, error) {
	cmd, arg, ok := h.match(frame)
	if !ok {
		sess.Log.Debug("Invalid command", "frame", fmt.Sprintf("%q", frame))
		if h.invalid != nil {
			h.invalid(sess)
		}
		return true, sess.Reply(invalidCommandReply)
	}
	sess.Log.Debug("Command received", "cmd", cmd.Name(), "arg", arg)

	if cmd.Args() == domain.RequiredArg && strings.TrimSpace(arg) == "" {
		return true, sess.Reply("usage: " + cmd.Usage())
	}
	return cmd.Execute(ctx, sess, arg)
}

func (h *CommandHandler) match(frame []byte) (domain.Command, string, bool) {
	if !utf8.Valid(frame) {
		return nil, "", false
	}
	line := string(frame)

	if c, ok := h.commands[line]; ok {
		return c, "", true
	}
	for _, c := range h.withArgs {
		if rest, ok := strings.CutPrefix(line, c.Name()+" "); ok {
			return c, rest, true
		}
	}
	return nil, "", false
}

// Help lists the registered commands in registration order.
func (h *CommandHandler) Help() string {
	var b strings.Builder
	b.WriteString("available commands:\n")
	for _, c := range h.ordered {
		b.WriteString(c.Usage())
		if s, ok := c.(summarized); ok && s.Summary() != "" {
			b.WriteString(" - ")
			b.WriteString(s.Summary())
		}
		b.WriteByte('\n')
	}
	return b.String()
}
