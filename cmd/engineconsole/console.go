package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	prompt "github.com/c-bata/go-prompt"

	"github.com/rivenoak/engine/enginehost"
)

const (
	defaultPromptPrefix = "> "
	maxHistoryEntries   = 128
)

// commandFunc implements one console command against host, given the
// whitespace-split arguments that followed the command name.
type commandFunc func(host *enginehost.Host, args []string) string

var commands = map[string]commandFunc{
	"step":    cmdStep,
	"objects": cmdObjects,
	"chunks":  cmdChunks,
	"clients": cmdClients,
	"help":    cmdHelp,
}

// Console is an interactive command source reading from an io.Reader
// (os.Stdin by default), the same New/WithReader/Run/runScanner/
// runInteractive/execute/complete shape as server/console.Console, driven
// against a fixed command table instead of a pluggable cmd.Command registry.
type Console struct {
	host    *enginehost.Host
	log     *slog.Logger
	reader  io.Reader
	history []string
}

// New returns a Console bound to host. It reads from os.Stdin by default.
func New(host *enginehost.Host, log *slog.Logger) *Console {
	if log == nil {
		log = slog.Default()
	}
	return &Console{host: host, log: log, reader: os.Stdin}
}

// WithReader sets a custom reader, enabling testing the console without
// os.Stdin.
func (c *Console) WithReader(r io.Reader) *Console {
	if r != nil {
		c.reader = r
	}
	return c
}

// Run consumes commands until ctx is cancelled or the reader hits EOF.
func (c *Console) Run(ctx context.Context) {
	if c.reader != os.Stdin {
		c.runScanner(ctx)
		return
	}
	c.runInteractive(ctx)
}

func (c *Console) runScanner(ctx context.Context) {
	scanner := bufio.NewScanner(c.reader)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				c.log.Error("console input error", "error", err)
			}
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.execute(line)
	}
}

func (c *Console) runInteractive(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := prompt.Input(defaultPromptPrefix, c.complete,
			prompt.OptionTitle("Engine Console"),
			prompt.OptionHistory(c.history),
			prompt.OptionPrefix(defaultPromptPrefix),
			prompt.OptionCompletionOnDown(),
			prompt.OptionMaxSuggestion(12),
		)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		c.execute(line)
	}
}

func (c *Console) execute(line string) {
	c.history = append(c.history, line)
	if len(c.history) > maxHistoryEntries {
		c.history = c.history[len(c.history)-maxHistoryEntries:]
	}

	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	if name == "quit" || name == "exit" {
		os.Exit(0)
	}

	fn, ok := commands[name]
	if !ok {
		fmt.Printf("unknown command %q (try \"help\")\n", name)
		return
	}
	if out := fn(c.host, fields[1:]); out != "" {
		fmt.Println(out)
	}
}

func (c *Console) complete(doc prompt.Document) []prompt.Suggest {
	word := strings.ToLower(doc.GetWordBeforeCursor())
	names := make([]string, 0, len(commands)+2)
	for name := range commands {
		names = append(names, name)
	}
	names = append(names, "quit", "exit")
	sort.Strings(names)

	suggestions := make([]prompt.Suggest, 0, len(names))
	for _, name := range names {
		suggestions = append(suggestions, prompt.Suggest{Text: name})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}

func cmdStep(host *enginehost.Host, _ []string) string {
	if err := host.Step(); err != nil {
		return fmt.Sprintf("step failed: %v", err)
	}
	return "stepped"
}

func cmdObjects(host *enginehost.Host, _ []string) string {
	ids := host.Scheduler.Ids()
	if len(ids) == 0 {
		return "no attached objects"
	}
	var b strings.Builder
	for _, id := range ids {
		obj, ok := host.Scheduler.Find(id)
		name := "?"
		if ok {
			name = obj.Context().Name()
		}
		fmt.Fprintf(&b, "%s  %s\n", id, name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func cmdChunks(host *enginehost.Host, _ []string) string {
	return fmt.Sprintf("loaded=%d free=%d", host.World.LoadedChunkCount(), host.World.FreeChunkCount())
}

func cmdClients(host *enginehost.Host, _ []string) string {
	indices := host.ClientIndices()
	if len(indices) == 0 {
		return "no connected clients"
	}
	sort.Ints(indices)
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return strings.Join(parts, ", ")
}

func cmdHelp(_ *enginehost.Host, _ []string) string {
	return "commands: step, objects, chunks, clients, help, quit"
}
