package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/void/internal/attach"
	"github.com/kalambet/void/internal/chat"
	"github.com/kalambet/void/internal/engine"
	"github.com/kalambet/void/internal/guard"
	"github.com/kalambet/void/internal/memory"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation with the configured engine.

Type a message and press enter. Type "exit" to leave. Ctrl-C while a reply
is being generated stops that reply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd.Context(), cmd, guard.RoleWorker, true)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.checkLocal(); err != nil {
			return err
		}

		opts := rt.memoryOptions()
		opts.SessionID = chat.NewID()
		mem := memory.New(opts)
		defer mem.Close()

		printStep("session %s (engine: %s)", shortID(mem.ID()), rt.cfg.Engine.Mode)
		defer func() {
			if path := mem.LogPath(); path != "" && mem.Len() > 0 {
				printStep("transcript saved to %s", path)
			}
		}()
		return chatLoop(cmd.Context(), rt.service, mem, os.Stdin, stdout)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question",
	Long: `Ask a single question and print the reply.

Examples:
  void ask "what is a process group?"
  void ask --attach notes.pdf "summarize this"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, _ := cmd.Flags().GetStringSlice("attach")

		docs := make([]attach.Document, 0, len(files))
		for _, f := range files {
			doc, err := attach.Extract(f)
			if err != nil {
				return fmt.Errorf("attaching %s: %w", f, err)
			}
			if doc.Truncated {
				printWarning("%s truncated to %d bytes", doc.Name, attach.MaxTextSize)
			}
			docs = append(docs, doc)
		}
		question := attach.Compose(strings.Join(args, " "), docs...)

		rt, err := newRuntime(cmd.Context(), cmd, guard.RoleWorker, true)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.checkLocal(); err != nil {
			return err
		}

		opts := rt.memoryOptions()
		opts.SessionID = chat.NewID()
		mem := memory.New(opts)
		defer mem.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		reply := exchange(ctx, rt.service, mem, question, stdout)
		return reply.Err
	},
}

func init() {
	askCmd.Flags().StringSlice("attach", nil, "attach a PDF or text file (repeatable)")
}

// chatLoop reads one line of input per turn until "exit" or end of input.
func chatLoop(ctx context.Context, svc *chat.Service, mem *memory.Memory, in io.Reader, out io.Writer) error {
	r := bufio.NewReader(in)
	for {
		fmt.Fprint(out, promptLabel())
		line, err := r.ReadString('\n')
		input := strings.TrimSpace(line)

		switch {
		case strings.EqualFold(input, "exit"):
			return nil
		case input != "":
			turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
			reply := exchange(turnCtx, svc, mem, input, out)
			stop()
			if reply.Err != nil {
				printError("%s", engine.Describe(reply.Err))
			}
		}

		if errors.Is(err, io.EOF) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// exchange sends input and writes the reply to out. Fragments are printed as
// they arrive unless output hooks may rewrite the reply, in which case only
// the final text is printed.
func exchange(ctx context.Context, svc *chat.Service, mem *memory.Memory, input string, out io.Writer) chat.Reply {
	fmt.Fprint(out, replyLabel())

	var onFragment func(string)
	if !svc.TransformsOutput() {
		onFragment = func(s string) { fmt.Fprint(out, s) }
	}
	reply := svc.SendStream(ctx, mem, input, onFragment)

	if onFragment == nil {
		fmt.Fprint(out, reply.Text)
	}
	if reply.Text == "" || !strings.HasSuffix(reply.Text, "\n") {
		fmt.Fprintln(out)
	}
	return reply
}
