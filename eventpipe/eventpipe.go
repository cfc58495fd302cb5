package eventpipe

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"quadenc/sim"
)

// MaxSteps bounds the transitions a single step or turn command may make.
const MaxSteps = 1 << 16

// Config holds configuration for the event pipe.
type Config struct {
	Path string `yaml:"path"` // Path to named pipe (e.g., "/tmp/quadenc-events")
}

// Kind identifies a command.
type Kind int

const (
	Nop      Kind = iota     // Blank or comment line
	Step                     // Move the simulated encoder N transitions
	Turn                     // Move the simulated encoder N detents
	Level                    // Drive simulated pin Pin to High
	Reset                    // Zero the counter
	Position                 // Store N clicks
	Value                    // Store N raw ticks
)

func (k Kind) String() string {
	switch k {
	case Nop:
		return "nop"
	case Step:
		return "step"
	case Turn:
		return "turn"
	case Level:
		return "level"
	case Reset:
		return "reset"
	case Position:
		return "position"
	case Value:
		return "value"
	default:
		return "unknown"
	}
}

// Simulated reports whether the command needs simulated inputs.
func (k Kind) Simulated() bool {
	return k == Step || k == Turn || k == Level
}

// Command is one parsed control line.
type Command struct {
	Kind Kind
	N    int64
	Pin  string // "a" or "b", Level only
	High bool
}

// CommandHandler is called when a command is received from the pipe.
type CommandHandler func(Command)

// EventPipe listens for commands on a named pipe.
type EventPipe struct {
	path    string
	handler CommandHandler
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a new EventPipe. Returns nil if path is empty.
func New(cfg Config, handler CommandHandler) (*EventPipe, error) {
	if cfg.Path == "" {
		return nil, nil
	}

	// Remove existing pipe if it exists
	os.Remove(cfg.Path)

	if err := unix.Mkfifo(cfg.Path, 0666); err != nil {
		return nil, fmt.Errorf("create named pipe %s: %w", cfg.Path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPipe{
		path:    cfg.Path,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}

	return ep, nil
}

// Start begins listening for commands on the pipe.
// This should be called as a goroutine.
func (ep *EventPipe) Start() {
	log.Printf("Event pipe listening on %s", ep.path)

	for {
		select {
		case <-ep.ctx.Done():
			return
		default:
		}

		// Blocks until a writer connects
		file, err := os.OpenFile(ep.path, os.O_RDONLY, 0)
		if err != nil {
			if ep.ctx.Err() != nil {
				return
			}
			log.Printf("Event pipe open error: %v", err)
			continue
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			if ep.ctx.Err() != nil {
				file.Close()
				return
			}

			cmd, err := ParseLine(scanner.Text())
			if err != nil {
				log.Printf("Event pipe parse error: %v", err)
				continue
			}
			if cmd.Kind == Nop {
				continue
			}

			if ep.handler != nil {
				ep.handler(cmd)
			}
		}

		file.Close()
		// Writer closed the pipe, loop back to wait for next writer
	}
}

// Close stops the event pipe listener and removes the pipe.
func (ep *EventPipe) Close() error {
	ep.cancel()

	// Wake a Start blocked in open waiting for a writer.
	if fd, err := unix.Open(ep.path, unix.O_WRONLY|unix.O_NONBLOCK, 0); err == nil {
		unix.Close(fd)
	}
	return os.Remove(ep.path)
}

// ParseLine parses a command line into a Command.
// Command format:
//
//	step <n>           - n quadrature transitions (negative = backward)
//	turn <n>           - n detents
//	a <0|1>, b <0|1>   - set a simulated pin level
//	reset              - zero the counter
//	position <n>       - set the scaled position
//	value <n>          - set the raw count
//
// Text after '#' is a comment. Blank and comment-only lines parse as Nop.
// Step and turn are limited to MaxSteps transitions.
func ParseLine(line string) (Command, error) {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{Kind: Nop}, nil
	}

	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "reset":
		return Command{Kind: Reset}, nil

	case "step", "turn", "position", "pos", "value":
		if len(parts) < 2 {
			return Command{}, fmt.Errorf("%s requires a number", cmd)
		}
		n, err := strconv.ParseInt(strings.TrimPrefix(parts[1], "+"), 10, 64)
		if err != nil {
			return Command{}, fmt.Errorf("invalid %s argument: %s", cmd, parts[1])
		}
		kind := map[string]Kind{
			"step":     Step,
			"turn":     Turn,
			"position": Position,
			"pos":      Position,
			"value":    Value,
		}[cmd]
		if err := checkSteps(kind, n); err != nil {
			return Command{}, err
		}
		return Command{Kind: kind, N: n}, nil

	case "a", "b":
		if len(parts) < 2 {
			return Command{}, fmt.Errorf("pin %s requires <0|1>", cmd)
		}
		var high bool
		switch strings.ToLower(parts[1]) {
		case "1", "high", "true":
			high = true
		case "0", "low", "false":
		default:
			return Command{}, fmt.Errorf("invalid level for pin %s: %s", cmd, parts[1])
		}
		return Command{Kind: Level, Pin: cmd, High: high}, nil

	default:
		return Command{}, fmt.Errorf("unknown command: %s", cmd)
	}
}

func checkSteps(kind Kind, n int64) error {
	limit := int64(MaxSteps)
	switch kind {
	case Step:
	case Turn:
		limit /= sim.StepsPerDetent
	default:
		return nil
	}
	if n > limit || n < -limit {
		return fmt.Errorf("%s %d out of range, limit is %d", kind, n, limit)
	}
	return nil
}
