// Package display renders the device screens. The Console renderer frames
// each screen with lipgloss and writes it to a terminal or log, standing in
// for the e-paper panel.
package display

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/thefoeyouknow/Teams-Pod/internal/battery"
	"github.com/thefoeyouknow/Teams-Pod/internal/presence"
)

// DefaultWidth matches the 250px panel at the built-in font.
const DefaultWidth = 36

// Console draws screens as framed text.
type Console struct {
	Out    io.Writer
	Width  int
	Invert bool
	// FullRefreshEvery forces a full panel refresh after that many partial
	// updates. Zero means every update is full.
	FullRefreshEvery int

	mu       sync.Mutex
	r        *lipgloss.Renderer
	ready    bool
	partials int
	fulls    int
	last     string
}

// NewConsole returns a Console writing to out.
func NewConsole(out io.Writer, invert bool, fullRefreshEvery int) *Console {
	return &Console{Out: out, Width: DefaultWidth, Invert: invert, FullRefreshEvery: fullRefreshEvery}
}

// Init prepares the renderer. The device cannot run without it.
func (c *Console) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Out == nil {
		return errors.New("display: no output")
	}
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	c.r = lipgloss.NewRenderer(c.Out)
	c.partials = c.FullRefreshEvery
	c.ready = true
	return nil
}

// Configure applies display settings loaded after Init. A change of
// polarity forces the next draw to be a full refresh.
func (c *Console) Configure(invert bool, fullRefreshEvery int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if invert != c.Invert {
		c.partials = fullRefreshEvery
	}
	c.Invert = invert
	c.FullRefreshEvery = fullRefreshEvery
}

// Last returns the most recently drawn screen.
func (c *Console) Last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Splash shows the boot gate.
func (c *Console) Splash(version string) {
	c.draw("Status Pod", version, "",
		"BOOT    continue",
		"hold 3s factory reset")
}

// Setup shows provisioning instructions.
func (c *Console) Setup(deviceName string) {
	c.draw("Setup", "No Wi-Fi credentials",
		"",
		"Device: "+deviceName,
		"Copy provision.yaml to the",
		"SD card to configure.")
}

// DeviceCode shows the code the user must enter to sign in.
func (c *Console) DeviceCode(userCode, qrURL string, expiresIn time.Duration) {
	c.draw("Sign in", "Enter code",
		"",
		c.style().Bold(true).Render(userCode),
		"",
		qrURL,
		fmt.Sprintf("expires in %s", expiresIn.Round(time.Second)))
}

// Status shows the current presence.
func (c *Console) Status(p presence.State, b battery.Reading) {
	lines := []string{"", c.style().Bold(true).Render(presence.Label(p.Availability))}
	if p.Activity != "" && p.Activity != p.Availability {
		lines = append(lines, presence.Label(p.Activity))
	}
	lines = append(lines, "", batteryLine(b))
	c.draw("Presence", "", lines...)
}

// Error shows a fatal error and the restart affordance.
func (c *Console) Error(title, detail string) {
	c.draw("Error", title, "", detail, "", "hold BOOT 3s to restart")
}

// Shutdown shows the power-off screen.
func (c *Console) Shutdown() {
	c.draw("Shutting down", "", "Press POWER to turn on")
}

// LowBattery shows a battery warning or the critical shutdown screen.
func (c *Console) LowBattery(percent int, critical bool) {
	if critical {
		c.draw("Battery critical", fmt.Sprintf("%d%%", percent), "", "Shutting down", "Charge the device")
		return
	}
	c.draw("Battery low", fmt.Sprintf("%d%%", percent), "", "Charge soon")
}

// OffHours shows the sleeping-until screen.
func (c *Console) OffHours(opensIn time.Duration) {
	c.draw("Office closed", "", fmt.Sprintf("Back in %s", opensIn.Round(time.Minute)), "", "BOOT to wake now")
}

// Menu shows a list with the selected entry marked.
func (c *Console) Menu(title string, items []string, selected int) {
	lines := make([]string, 0, len(items)+2)
	for i, it := range items {
		mark := "  "
		if i == selected {
			mark = "> "
		}
		lines = append(lines, mark+it)
	}
	lines = append(lines, "", "BOOT next  POWER select")
	c.draw(title, "", lines...)
}

func batteryLine(b battery.Reading) string {
	if b.Level == battery.LevelUSB {
		return "USB power"
	}
	return fmt.Sprintf("Battery %d%% (%.2fV)", b.Percent, b.Volts)
}

func (c *Console) style() lipgloss.Style {
	if c.r == nil {
		return lipgloss.NewStyle()
	}
	return c.r.NewStyle()
}

func (c *Console) draw(title, subtitle string, lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		log.Printf("display: %s (not initialised)", title)
		return
	}

	head := c.style().Bold(true).Render(title)
	if subtitle != "" {
		head += "\n" + subtitle
	}
	body := head
	if len(lines) > 0 {
		body += "\n" + strings.Join(lines, "\n")
	}

	frame := c.style().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(c.Width).
		Reverse(c.Invert)
	screen := frame.Render(body)

	full := c.FullRefreshEvery <= 0 || c.partials >= c.FullRefreshEvery
	if full {
		c.partials = 0
		c.fulls++
	} else {
		c.partials++
	}
	c.last = screen
	fmt.Fprintln(c.Out, screen)
	log.Printf("display: %s (full=%t)", title, full)
}
