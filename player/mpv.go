package player

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oriontv-cli/oriontv/constant"
	"github.com/oriontv-cli/oriontv/log"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
)

// MPV implements the Player interface using mpv's JSON-IPC protocol.
type MPV struct {
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{} // closed when mpv process exits
	feedStop   chan struct{} // signals the status feed to stop
	listener   *EventListener
	mu         sync.Mutex // protects socket writes

	// property state folded in from the event listener between feed ticks
	stateMu   sync.Mutex
	buffering bool
	seeking   bool
	eof       bool
	playErr   error

	// user preferences observed from mpv
	rate   float64
	volume float64
	muted  bool
}

// NewMPV creates a new MPV player instance (does not start playback).
func NewMPV() *MPV {
	return &MPV{
		exited: make(chan struct{}),
		rate:   1.0,
		volume: 100,
	}
}

// Settings reports the last user-adjusted rate, volume, and mute state.
// Values remain readable after the mpv process has exited.
func (m *MPV) Settings() (rate float64, volume int, muted bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.rate, int(m.volume), m.muted
}

// Play starts playback of the given URL. If mpv is already running,
// it loads the new file into the existing instance via IPC.
func (m *MPV) Play(rawURL string, title string, headers map[string]string) error {
	safeURL, err := sanitizeMediaTarget(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	if m.Running() {
		return m.Load(safeURL)
	}

	safeTitle := sanitizeTitle(title)

	var headerString string
	if len(headers) > 0 {
		var hBuilder strings.Builder
		for k, v := range headers {
			if hBuilder.Len() > 0 {
				hBuilder.WriteString(",")
			}
			val := strings.ReplaceAll(v, ",", "%2C")
			hBuilder.WriteString(fmt.Sprintf("%s: %s", k, val))
		}
		headerString = hBuilder.String()
	}

	// Generate a random socket path using os.TempDir() for cross-platform support
	// (macOS $TMPDIR is /var/folders/... not /tmp/)
	if m.socketPath == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("generate socket name: %w", err)
		}
		m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("%s-%x.sock", constant.OrionTV, randomBytes))
	}

	// Pass only the socket, title, and URL. Do NOT pass --vo, --profile,
	// --hwdec; respect the user's mpv.conf.
	args := []string{
		"--no-terminal",
		"--really-quiet",
		fmt.Sprintf("--input-ipc-server=%s", m.socketPath),
		fmt.Sprintf("--force-media-title=%s", safeTitle),
		fmt.Sprintf("--title=%s", safeTitle), // some mpv builds only respect --title
		"--force-window=yes",
		"--idle=yes",
	}

	if headerString != "" {
		args = append(args, fmt.Sprintf("--http-header-fields=%s", headerString))
	}

	args = append(args, safeURL)

	m.cmd = exec.Command("mpv", args...)

	// Detach from parent process group to prevent cascading shell panics.
	m.cmd.SysProcAttr = sysProcAttr()

	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	// Reap the process in the background to prevent zombies
	m.exited = make(chan struct{})
	go func() {
		_ = m.cmd.Wait()
		close(m.exited)
	}()

	if err := m.waitForSocket(); err != nil {
		if m.cmd.Process != nil {
			select {
			case <-m.exited:
			default:
				log.Warnf("killing mpv: socket never became ready")
				_ = m.cmd.Process.Kill()
			}
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	m.listener = NewEventListener(m.socketPath, m.onEvent)
	if err := m.listener.Start(); err != nil {
		log.Warnf("mpv event listener: %v", err)
	}

	return nil
}

// Load replaces the currently playing media in the running instance.
func (m *MPV) Load(rawURL string) error {
	safeURL, err := sanitizeMediaTarget(rawURL)
	if err != nil {
		return fmt.Errorf("invalid media target: %w", err)
	}

	m.resetState()
	_, err = m.sendCommand([]interface{}{"loadfile", safeURL, "replace"})
	return err
}

// onEvent folds property changes into the state consumed by the status feed.
func (m *MPV) onEvent(property string, data interface{}) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	switch property {
	case "paused-for-cache":
		m.buffering, _ = data.(bool)
	case "seeking":
		m.seeking, _ = data.(bool)
	case "eof-reached":
		if reached, ok := data.(bool); ok && reached {
			m.eof = true
		}
	case "speed":
		if rate, ok := data.(float64); ok && rate > 0 {
			m.rate = rate
		}
	case "volume":
		if volume, ok := data.(float64); ok {
			m.volume = volume
		}
	case "mute":
		m.muted, _ = data.(bool)
	case "end-file":
		if event, ok := data.(map[string]interface{}); ok {
			if reason, _ := event["reason"].(string); reason == "error" {
				detail, _ := event["file_error"].(string)
				if detail == "" {
					detail = "unknown"
				}
				m.playErr = errors.New("mpv end-file: " + detail)
			}
		}
	}
}

func (m *MPV) resetState() {
	m.stateMu.Lock()
	m.buffering = false
	m.seeking = false
	m.eof = false
	m.playErr = nil
	m.stateMu.Unlock()
}

// Wait returns a channel that is closed when the mpv process exits.
func (m *MPV) Wait() <-chan struct{} {
	return m.exited
}

// waitForSocket polls until the mpv IPC socket is accepting connections.
func (m *MPV) waitForSocket() error {
	for i := 0; i < socketWaitRetries; i++ {
		time.Sleep(socketWaitDelay)

		select {
		case <-m.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		default:
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

// Position returns the current playback position in seconds.
func (m *MPV) Position() (float64, error) {
	return m.getFloatProperty("time-pos")
}

// Duration returns the total duration of the current media in seconds.
func (m *MPV) Duration() (float64, error) {
	return m.getFloatProperty("duration")
}

// Paused returns whether playback is currently paused.
func (m *MPV) Paused() (bool, error) {
	data, err := m.sendCommand([]interface{}{"get_property", "pause"})
	if err != nil {
		return false, err
	}
	paused, ok := data.(bool)
	if !ok {
		return false, nil
	}
	return paused, nil
}

// Seek moves playback to the given absolute position in seconds.
func (m *MPV) Seek(seconds float64) error {
	_, err := m.sendCommand([]interface{}{"seek", seconds, "absolute"})
	return err
}

// SetPause sets the suspension state explicitly.
func (m *MPV) SetPause(paused bool) error {
	return m.set("pause", paused)
}

// TogglePause inverts the suspension state.
func (m *MPV) TogglePause() error {
	_, err := m.sendCommand([]interface{}{"cycle", "pause"})
	return err
}

// SetRate sets the playback speed multiplier.
func (m *MPV) SetRate(rate float64) error {
	return m.set("speed", rate)
}

// Running reports whether mpv is responding to IPC commands.
func (m *MPV) Running() bool {
	if m.socketPath == "" {
		return false
	}

	select {
	case <-m.exited:
		return false
	default:
	}

	_, err := m.sendCommand([]interface{}{"get_property", "pid"})
	return err == nil
}

// StartStatusFeed starts a background ticker that assembles a Status
// observation at the given interval and hands it to the callback.
func (m *MPV) StartStatusFeed(interval time.Duration, callback func(Status)) {
	m.stateMu.Lock()
	if m.feedStop != nil {
		m.stateMu.Unlock()
		return // feed already running
	}
	stop := make(chan struct{})
	m.feedStop = stop
	m.stateMu.Unlock()

	// The goroutine holds its own stop channel; a restart must never leave
	// an old ticker selecting on the new one.
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-m.exited:
				return
			case <-ticker.C:
				callback(m.observe())
			}
		}
	}()
}

// observe assembles one Status from polled properties and event state.
func (m *MPV) observe() Status {
	var status Status

	m.stateMu.Lock()
	status.Buffering = m.buffering
	status.Seeking = m.seeking
	status.Finished = m.eof
	status.Err = m.playErr
	m.stateMu.Unlock()

	pos, err := m.Position()
	if err != nil {
		// "property unavailable" means nothing is loaded — valid state
		if !strings.Contains(err.Error(), "property unavailable") {
			status.Err = err
		}
		return status
	}
	status.Loaded = true
	status.Position = pos

	if dur, err := m.Duration(); err == nil {
		status.Duration = dur
	}

	paused, err := m.Paused()
	if err == nil {
		status.Playing = !paused && !status.Buffering && !status.Finished
	}

	return status
}

// StopStatusFeed stops the background feed if it's running.
func (m *MPV) StopStatusFeed() {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if m.feedStop != nil {
		close(m.feedStop)
		m.feedStop = nil
	}
}

// Close shuts down the mpv process and cleans up resources.
func (m *MPV) Close() error {
	m.StopStatusFeed()

	if m.listener != nil {
		m.listener.Stop()
	}

	if m.socketPath == "" {
		return nil
	}

	// Try graceful quit via IPC
	_, _ = m.sendCommand([]interface{}{"quit"})

	select {
	case <-m.exited:
	case <-time.After(3 * time.Second):
		_ = killProcess(m.cmd)
	}

	_ = os.Remove(m.socketPath)

	return nil
}

// Socket returns the IPC socket path.
func (m *MPV) Socket() string {
	return m.socketPath
}

func (m *MPV) set(property string, value interface{}) error {
	_, err := m.sendCommand([]interface{}{"set_property", property, value})
	return err
}

// getFloatProperty is a helper to retrieve a float64 mpv property via IPC.
func (m *MPV) getFloatProperty(name string) (float64, error) {
	data, err := m.sendCommand([]interface{}{"get_property", name})
	if err != nil {
		return 0, err
	}

	if data == nil {
		return 0, fmt.Errorf("property %s: nil response", name)
	}

	val, ok := data.(float64)
	if !ok {
		return 0, fmt.Errorf("property %s: expected float64, got %T", name, data)
	}

	return val, nil
}

// sanitizeMediaTarget validates that a URL is safe to pass to mpv.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", fmt.Errorf("empty URL")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in URL")
	}

	// Prevent flag injection: URLs must not start with -
	if strings.HasPrefix(l, "-") {
		return "", fmt.Errorf("url must not start with '-' (looks like a flag)")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	// Treat as local file path
	return filepath.Clean(l), nil
}

// sanitizeTitle cleans up the title for mpv's command line.
func sanitizeTitle(title string) string {
	t := strings.ReplaceAll(title, "\n", " ")
	t = strings.ReplaceAll(t, "\r", " ")
	t = strings.ReplaceAll(t, "\t", " ")
	t = strings.ReplaceAll(t, "\x00", "")
	return strings.TrimSpace(t)
}
