// Package console provides the interactive command line for bgtunes: it
// turns typed commands into controller intents and prints status changes
// and notices.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/bgtunes/internal/app/catalog"
	"github.com/osa030/bgtunes/internal/app/device"
	"github.com/osa030/bgtunes/internal/app/notification"
	"github.com/osa030/bgtunes/internal/app/playback"
)

const prompt = "bgtunes> "

// Controller is the command surface the console drives.
type Controller interface {
	Play() error
	Pause() error
	Toggle() error
	Stop() error
	SelectTrack(index int) error
	AddTrack(path string, overwrite bool) error
	SetVolume(percent int) error
	Status() (playback.Status, error)
}

// Console reads commands and renders playback events.
type Console struct {
	ctrl    Controller
	devices device.Enumerator // nil when enumeration is unavailable
	rl      *readline.Instance
	ask     func(question string) (string, error)

	mu        sync.Mutex
	out       io.Writer
	last      playback.Status
	hasStatus bool
}

var _ notification.Stream = (*Console)(nil)

// New creates a console on the terminal.
func New(ctrl Controller, devices device.Enumerator) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create console")
	}

	c := newConsole(ctrl, devices, rl.Stdout())
	c.rl = rl
	c.ask = func(question string) (string, error) {
		rl.SetPrompt(question)
		defer rl.SetPrompt(prompt)
		return rl.Readline()
	}
	return c, nil
}

func newConsole(ctrl Controller, devices device.Enumerator, out io.Writer) *Console {
	return &Console{
		ctrl:    ctrl,
		devices: devices,
		out:     out,
		ask: func(string) (string, error) {
			return "", io.EOF
		},
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("play"),
		readline.PcItem("pause"),
		readline.PcItem("toggle"),
		readline.PcItem("stop"),
		readline.PcItem("select"),
		readline.PcItem("add", readline.PcItemDynamic(audioFiles)),
		readline.PcItem("volume"),
		readline.PcItem("status"),
		readline.PcItem("tracks"),
		readline.PcItem("devices"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// audioFiles completes the path argument of "add".
func audioFiles(line string) []string {
	_, arg, _ := strings.Cut(strings.TrimLeft(line, " "), " ")
	arg = strings.TrimSpace(arg)

	dir := filepath.Dir(arg)
	if arg == "" {
		dir = "."
	}
	entries, _ := os.ReadDir(dir)
	var names []string
	for _, e := range entries {
		name := filepath.Join(dir, e.Name())
		if !strings.HasPrefix(name, arg) {
			continue
		}
		if e.IsDir() {
			names = append(names, name+string(filepath.Separator))
		} else if catalog.IsSupported(name) {
			names = append(names, name)
		}
	}
	return names
}

// Run reads commands until exit, end of input or ctx cancellation.
func (c *Console) Run(ctx context.Context) error {
	if c.rl == nil {
		return errors.New("console has no terminal")
	}
	closeTerminal := sync.OnceFunc(func() { _ = c.rl.Close() })
	defer closeTerminal()

	stop := context.AfterFunc(ctx, closeTerminal)
	defer stop()

	c.println(title + ` - type "help" for commands`)
	c.showStatus()

	for {
		line, err := c.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "failed to read command")
		}

		cmd, err := Parse(line)
		if err != nil {
			c.println("❌ " + err.Error())
			continue
		}
		if c.Execute(cmd) {
			return nil
		}
	}
}

// Execute runs one command and reports whether the console should exit.
func (c *Console) Execute(cmd Command) bool {
	var err error
	switch cmd.Kind {
	case CmdNone:
	case CmdPlay:
		err = c.ctrl.Play()
	case CmdPause:
		err = c.ctrl.Pause()
	case CmdToggle:
		err = c.ctrl.Toggle()
	case CmdStop:
		err = c.ctrl.Stop()
	case CmdSelect:
		err = c.ctrl.SelectTrack(cmd.Index)
	case CmdAdd:
		err = c.addTrack(cmd.Path)
	case CmdVolume:
		if err = c.ctrl.SetVolume(cmd.Value); err == nil {
			c.showVolume()
		}
	case CmdStatus:
		c.showStatus()
	case CmdTracks:
		c.showTracks()
	case CmdDevices:
		c.showDevices()
	case CmdHelp:
		c.println(helpText)
	case CmdExit:
		return true
	}

	if err != nil {
		c.report(err)
	}
	return false
}

func (c *Console) addTrack(path string) error {
	err := c.ctrl.AddTrack(path, false)
	if !errors.Is(err, playback.ErrDuplicateResourceName) {
		return err
	}

	answer, askErr := c.ask(fmt.Sprintf("%s already exists. Overwrite? [y/N] ", filepath.Base(path)))
	if askErr != nil || !IsYes(answer) {
		c.println("Song not added")
		return nil
	}
	return c.ctrl.AddTrack(path, true)
}

// report prints errors the controller does not announce as notices.
func (c *Console) report(err error) {
	zlog.Debug().Msgf("console: command failed: %v", err)
	switch {
	case errors.Is(err, playback.ErrInvalidSelection):
		c.println("❌ That song cannot be selected")
	case errors.Is(err, playback.ErrClosed):
		c.println("❌ Player is shutting down")
	}
}

func (c *Console) showStatus() {
	st, err := c.ctrl.Status()
	if err != nil {
		c.report(err)
		return
	}
	c.println(FormatStatus(st))
}

func (c *Console) showVolume() {
	st, err := c.ctrl.Status()
	if err != nil {
		c.report(err)
		return
	}
	c.println(fmt.Sprintf("%s %d%%", VolumeIcon(st.VolumePercent), st.VolumePercent))
}

func (c *Console) showTracks() {
	st, err := c.ctrl.Status()
	if err != nil {
		c.report(err)
		return
	}
	c.println(FormatTracks(st))
}

func (c *Console) showDevices() {
	if c.devices == nil {
		c.println("Device enumeration unavailable")
		return
	}
	list, err := c.devices.Outputs()
	if err != nil {
		c.println("❌ " + err.Error())
		return
	}
	c.println(FormatDevices(list))
}

// Send renders a playback event. Notices are always printed; status
// events only when the state or track changed.
func (c *Console) Send(n *notification.Notification) error {
	switch n.Type {
	case playback.EventNotice:
		if n.Notice != nil {
			c.println(FormatNotice(*n.Notice))
		}
	case playback.EventStatus:
		c.mu.Lock()
		changed := !c.hasStatus || c.last.State != n.Status.State || c.last.TrackName != n.Status.TrackName
		c.last = n.Status
		c.hasStatus = true
		c.mu.Unlock()
		if changed {
			c.println(FormatStatusLine(n.Status))
		}
	}
	return nil
}

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}
