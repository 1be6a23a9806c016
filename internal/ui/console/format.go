package console

import (
	"fmt"
	"strings"

	"github.com/osa030/bgtunes/internal/app/device"
	"github.com/osa030/bgtunes/internal/app/playback"
	"github.com/osa030/bgtunes/internal/domain/track"
)

const title = "🎵 BG-Tunes"

// StateIcon returns the icon shown next to a state.
func StateIcon(s playback.State) string {
	switch s {
	case playback.StatePlaying:
		return "▶️"
	case playback.StateStopped:
		return "⏹️"
	default:
		return "⏸️"
	}
}

// StateLabel returns the user-facing name of a state.
func StateLabel(s playback.State) string {
	switch s {
	case playback.StatePlaying:
		return "Playing"
	case playback.StatePaused:
		return "Paused"
	case playback.StatePausedByDevice:
		return "Paused (device)"
	default:
		return "Stopped"
	}
}

// VolumeIcon returns the speaker icon for a volume percent.
func VolumeIcon(percent int) string {
	switch {
	case percent <= 0:
		return "🔇"
	case percent <= 25:
		return "🔈"
	case percent <= 50:
		return "🔉"
	default:
		return "🔊"
	}
}

// FormatStatus renders the status block.
func FormatStatus(st playback.Status) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s Status: %s", StateIcon(st.State), StateLabel(st.State))
	if st.DeviceName != "" {
		fmt.Fprintf(&b, " (%s)", st.DeviceName)
	}
	b.WriteByte('\n')

	name := st.TrackName
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(&b, "🎶 Song: %s\n", track.TruncateName(name))
	fmt.Fprintf(&b, "%s %d%%", VolumeIcon(st.VolumePercent), st.VolumePercent)
	if !st.CanPlay {
		b.WriteString("  (play unavailable)")
	}
	return b.String()
}

// FormatStatusLine renders a one-line status summary.
func FormatStatusLine(st playback.Status) string {
	name := st.TrackName
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("%s %s · %s · %s %d%%",
		StateIcon(st.State), StateLabel(st.State), track.TruncateName(name),
		VolumeIcon(st.VolumePercent), st.VolumePercent)
}

// FormatTracks lists catalog entries with 1-based numbers. The current
// entry is marked and entries that cannot be selected are flagged.
func FormatTracks(st playback.Status) string {
	if len(st.Entries) == 0 {
		return "No songs"
	}
	var b strings.Builder
	for i, e := range st.Entries {
		mark := " "
		if e.Current {
			mark = "✓"
		}
		fmt.Fprintf(&b, "%s %2d. %s", mark, i+1, e.Name)
		if !e.Enabled {
			b.WriteString(" (unavailable)")
		}
		if i < len(st.Entries)-1 {
			b.WriteByte('\n')
		}
	}
	if st.Fallback {
		b.WriteString("\n  (playing a generated tone)")
	}
	return b.String()
}

// FormatNotice renders a notice with a severity prefix.
func FormatNotice(n playback.Notice) string {
	switch n.Severity {
	case playback.SeverityError:
		return "❌ " + n.Message
	case playback.SeverityWarning:
		return "⚠️ " + n.Message
	default:
		return "ℹ️ " + n.Message
	}
}

// FormatDevices lists output devices, marking the default.
func FormatDevices(devices []device.Info) string {
	if len(devices) == 0 {
		return device.NoDeviceName
	}
	var b strings.Builder
	for i, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %s", mark, d.Name)
		if i < len(devices)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

const helpText = `Commands:
  play | pause | toggle (p) | stop
  select N (s N)     load track N from "tracks"
  add PATH           import an audio file (.mp3 .wav .flac .ogg)
  volume N (v N)     set volume 0-100
  status | tracks (ls) | devices
  help | exit (q)`
