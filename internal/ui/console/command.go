package console

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// CommandKind identifies a console command.
type CommandKind int

const (
	CmdNone CommandKind = iota // Empty line
	CmdPlay
	CmdPause
	CmdToggle
	CmdStop
	CmdSelect
	CmdAdd
	CmdVolume
	CmdStatus
	CmdTracks
	CmdDevices
	CmdHelp
	CmdExit
)

// ErrUnknownCommand is returned for input that names no command.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a parsed console line.
type Command struct {
	Kind  CommandKind
	Index int    // 0-based catalog index for CmdSelect
	Value int    // Percent for CmdVolume
	Path  string // Source file for CmdAdd
}

var keywords = map[string]CommandKind{
	"play":    CmdPlay,
	"pause":   CmdPause,
	"toggle":  CmdToggle,
	"p":       CmdToggle,
	"stop":    CmdStop,
	"select":  CmdSelect,
	"s":       CmdSelect,
	"add":     CmdAdd,
	"volume":  CmdVolume,
	"vol":     CmdVolume,
	"v":       CmdVolume,
	"status":  CmdStatus,
	"tracks":  CmdTracks,
	"ls":      CmdTracks,
	"devices": CmdDevices,
	"help":    CmdHelp,
	"?":       CmdHelp,
	"exit":    CmdExit,
	"quit":    CmdExit,
	"q":       CmdExit,
}

// Parse parses a console line. Track numbers are 1-based as listed by
// "tracks"; volume values are passed through unclamped.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Command{Kind: CmdNone}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	kind, ok := keywords[strings.ToLower(name)]
	if !ok {
		return Command{}, errors.Wrapf(ErrUnknownCommand, "%q", name)
	}

	cmd := Command{Kind: kind}
	switch kind {
	case CmdSelect:
		n, err := parseInt(rest, "track number")
		if err != nil {
			return Command{}, err
		}
		if n < 1 {
			return Command{}, errors.Newf("track number must be 1 or greater: %d", n)
		}
		cmd.Index = n - 1
	case CmdVolume:
		n, err := parseInt(strings.TrimSuffix(rest, "%"), "volume")
		if err != nil {
			return Command{}, err
		}
		cmd.Value = n
	case CmdAdd:
		if rest == "" {
			return Command{}, errors.New("add requires a file path")
		}
		cmd.Path = unquote(rest)
	default:
		if rest != "" {
			return Command{}, errors.Newf("%s takes no arguments", name)
		}
	}
	return cmd, nil
}

func parseInt(s, what string) (int, error) {
	if s == "" {
		return 0, errors.Newf("missing %s", what)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Newf("invalid %s: %q", what, s)
	}
	return n, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// IsYes reports whether an answer to a yes/no prompt is affirmative.
func IsYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
