package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benbuzz790/llm-utilities/bots"
)

func NewChatCmd(options *globalOptions) *cobra.Command {
	var auto int
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation.",
		Long: `Start an interactive conversation.

Commands:
  /exit          leave the chat
  /save [name]   save the agent (default name: <agent>@<timestamp>)
  /load <name>   resume a saved agent
  /auto <n>      answer tool requests automatically for up to n cycles (0 disables)
  /nodes         print the number of turns in the conversation tree`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := options.runtime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			term := newTerminal(rt, cmd.InOrStdin(), cmd.OutOrStdout())
			term.auto = auto
			return term.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&auto, "auto", 0, "answer tool requests automatically for up to N cycles")
	return cmd
}

// terminal is the interactive chat loop.
type terminal struct {
	rt   *bots.Runtime
	in   *bufio.Scanner
	out  io.Writer
	auto int
}

func newTerminal(rt *bots.Runtime, in io.Reader, out io.Writer) *terminal {
	return &terminal{rt: rt, in: bufio.NewScanner(in), out: out}
}

// Run reads lines until /exit or end of input.
func (t *terminal) Run(ctx context.Context) error {
	fmt.Fprintf(t.out, "System: Chat started with %s. Type \"/exit\" to exit.\n", t.rt.Agent.Name())
	for {
		fmt.Fprint(t.out, "You: ")
		if !t.in.Scan() {
			break
		}

		input := strings.TrimSpace(t.in.Text())
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if done := t.command(input); done {
				return nil
			}
			continue
		}

		if err := t.turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(t.out, "Error: %v\n", err)
		}
	}
	return t.in.Err()
}

func (t *terminal) turn(ctx context.Context, input string) error {
	var (
		reply string
		err   error
	)
	if t.auto > 0 {
		reply, err = t.rt.Agent.RespondAuto(ctx, input, "", t.auto)
	} else {
		reply, err = t.rt.Agent.Respond(ctx, input, "")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(t.out, "%s: %s\n", t.rt.Agent.Name(), reply)
	return nil
}

// command handles a slash command and reports whether the chat should end.
func (t *terminal) command(input string) bool {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/exit", "/quit":
		return true
	case "/save":
		saved, err := t.rt.Save(arg)
		if err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(t.out, "System: Conversation saved to %s\n", saved)
	case "/load":
		if arg == "" {
			fmt.Fprintln(t.out, "System: usage: /load <name>")
			return false
		}
		if err := t.rt.Load(arg); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
			return false
		}
		fmt.Fprintf(t.out, "System: Conversation loaded from %s\n", arg)
	case "/auto":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			fmt.Fprintln(t.out, "System: usage: /auto <cycles>")
			return false
		}
		t.auto = n
		fmt.Fprintf(t.out, "System: Automatic tool cycles set to %d\n", n)
	case "/nodes":
		fmt.Fprintf(t.out, "System: %d nodes\n", t.rt.Agent.Conversation().CountNodes())
	default:
		fmt.Fprintf(t.out, "System: unknown command %s\n", name)
	}
	return false
}
