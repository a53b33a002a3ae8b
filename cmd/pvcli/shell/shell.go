// Package shell provides the interactive command line of pvcli.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/slaclab/acclive/pkg/client"
	"github.com/slaclab/acclive/pkg/wire"
)

// DefaultTimeout bounds each get, put or info request.
const DefaultTimeout = 5 * time.Second

// Shell executes PV commands against a client context.
type Shell struct {
	pvs     *client.Context
	out     io.Writer
	timeout time.Duration
	asInt   bool

	mu        sync.Mutex
	monitored map[string]bool
	rl        *readline.Instance
}

// New creates a shell writing its output to out.
func New(pvs *client.Context, out io.Writer) *Shell {
	return &Shell{
		pvs:       pvs,
		out:       out,
		timeout:   DefaultTimeout,
		monitored: make(map[string]bool),
	}
}

// SetTimeout changes the per-request timeout.
func (s *Shell) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetIntegers makes put parse integral numbers as integers.
func (s *Shell) SetIntegers(on bool) { s.asInt = on }

// Stdout returns the writer used for command and monitor output.
func (s *Shell) Stdout() io.Writer {
	if s.rl != nil {
		return s.rl.Stdout()
	}
	return s.out
}

// Run starts the interactive loop. It returns when the user quits, the
// input ends or ctx is done.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pv> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	s.rl = rl
	defer rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.Stdout(), "Exiting...")
			cancel()
			return nil
		}

		if s.Exec(ctx, line) {
			fmt.Fprintln(s.Stdout(), "Exiting...")
			cancel()
			return nil
		}
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("get"),
		readline.PcItem("put"),
		readline.PcItem("putw"),
		readline.PcItem("info"),
		readline.PcItem("monitor"),
		readline.PcItem("unmonitor"),
		readline.PcItem("list"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	parts := strings.Fields(input)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "get", "g":
		s.cmdGet(ctx, args)
	case "put", "p":
		s.cmdPut(ctx, args, false)
	case "putw", "pw":
		s.cmdPut(ctx, args, true)
	case "info", "i":
		s.cmdInfo(ctx, args)
	case "monitor", "m":
		s.cmdMonitor(args)
	case "unmonitor", "um":
		s.cmdUnmonitor(args)
	case "list", "l":
		s.cmdList()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(s.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.Stdout(), `
PV Commands:
    get <pv>...          - Read one or more PVs
    put <pv> <value>     - Write a value without waiting
    putw <pv> <value>    - Write a value and wait for the server
    info <pv>            - Show the PV type, range and access
    monitor <pv>...      - Print updates as they arrive
    unmonitor <pv>...    - Stop printing updates
    list                 - List monitored PVs

    help                 - Show this help
    quit                 - Exit

Array values are written as space or comma separated numbers.`)
}

func (s *Shell) cmdGet(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.Stdout(), "Usage: get <pv>...")
		return
	}
	for _, name := range args {
		v, err := Get(ctx, s.pvs, name, s.timeout)
		if err != nil {
			fmt.Fprintf(s.Stdout(), "%s: error: %v\n", name, err)
			continue
		}
		fmt.Fprintln(s.Stdout(), FormatGet(name, v))
	}
}

func (s *Shell) cmdPut(ctx context.Context, args []string, wait bool) {
	if len(args) < 2 {
		fmt.Fprintln(s.Stdout(), "Usage: put <pv> <value>")
		return
	}
	name := args[0]
	value := wire.ParseValue(strings.Join(args[1:], " "), s.asInt)
	if err := Put(ctx, s.pvs, name, value, wait, s.timeout); err != nil {
		fmt.Fprintf(s.Stdout(), "%s: error: %v\n", name, err)
		return
	}
	fmt.Fprintf(s.Stdout(), "%s <- %s\n", name, wire.FormatValue(value))
}

func (s *Shell) cmdInfo(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.Stdout(), "Usage: info <pv>")
		return
	}
	info, err := Info(ctx, s.pvs, args[0], s.timeout)
	if err != nil {
		fmt.Fprintf(s.Stdout(), "%s: error: %v\n", args[0], err)
		return
	}
	fmt.Fprint(s.Stdout(), FormatInfo(args[0], info))
}

func (s *Shell) cmdMonitor(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(s.Stdout(), "Usage: monitor <pv>...")
		return
	}
	for _, name := range args {
		s.mu.Lock()
		active, known := s.monitored[name]
		s.monitored[name] = true
		s.mu.Unlock()

		if active {
			fmt.Fprintf(s.Stdout(), "%s: already monitored\n", name)
			continue
		}
		if !known {
			// Client subscriptions cannot be removed, so unmonitor only
			// mutes the callback registered here.
			s.pvs.PV(name).Monitor(func(u client.Update) {
				s.mu.Lock()
				on := s.monitored[u.Name]
				s.mu.Unlock()
				if on {
					fmt.Fprintln(s.Stdout(), FormatUpdate(u))
				}
			})
		}
		fmt.Fprintf(s.Stdout(), "monitoring %s\n", name)
	}
}

func (s *Shell) cmdUnmonitor(args []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range args {
		if s.monitored[name] {
			s.monitored[name] = false
			fmt.Fprintf(s.Stdout(), "stopped %s\n", name)
		}
	}
}

func (s *Shell) cmdList() {
	s.mu.Lock()
	var names []string
	for name, on := range s.monitored {
		if on {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	if len(names) == 0 {
		fmt.Fprintln(s.Stdout(), "no monitors")
		return
	}
	sort.Strings(names)
	for _, name := range names {
		state := "disconnected"
		if s.pvs.PV(name).Connected() {
			state = "connected"
		}
		fmt.Fprintf(s.Stdout(), "  %-40s %s\n", name, state)
	}
}
