// Package panel is a terminal statistics panel for the timer server. It shows
// the accumulated watch time, refreshes it every second, toggles the
// milliseconds display and resets the statistics after confirmation.
package panel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mstimer/mstimer-server/internal/domain"
)

// Texts shown by the panel.
const (
	LoadErrorText  = "Error loading data"
	ConfirmReset   = "Are you sure you want to reset all statistics?"
	ResetErrorText = "Error resetting statistics. Please try again."
)

// DefaultPollInterval is how often the total is refreshed.
const DefaultPollInterval = time.Second

// API is the part of the server API the panel uses. *Client implements it.
type API interface {
	Stats(ctx context.Context) (domain.Stats, error)
	Settings(ctx context.Context) (domain.Preferences, error)
	SetShowMilliseconds(ctx context.Context, show bool) (domain.Preferences, error)
	Reset(ctx context.Context) (domain.Stats, error)
}

// Options configures a Panel.
type Options struct {
	PollInterval time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// View is what the panel currently displays.
type View struct {
	Total            string
	ShowMilliseconds bool
}

// Panel renders statistics to a writer and takes commands from a reader.
type Panel struct {
	api      API
	out      io.Writer
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	view    View
	polling bool
}

// New creates a panel writing to out.
func New(api API, out io.Writer, opts Options) *Panel {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Panel{
		api:      api,
		out:      out,
		interval: opts.PollInterval,
		clock:    opts.Clock,
		logger:   opts.Logger,
		view:     View{ShowMilliseconds: domain.DefaultShowMilliseconds},
	}
}

// View returns the current display state.
func (p *Panel) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Polling reports whether the periodic refresh is active. It only starts
// after a successful Load.
func (p *Panel) Polling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polling
}

// Load reads the total and the preference. On failure the total shows the
// error placeholder and polling stays off.
func (p *Panel) Load(ctx context.Context) error {
	stats, err := p.api.Stats(ctx)
	if err == nil {
		var prefs domain.Preferences
		prefs, err = p.api.Settings(ctx)
		if err == nil {
			p.mu.Lock()
			p.view = View{Total: stats.Formatted, ShowMilliseconds: prefs.ShowMilliseconds}
			p.polling = true
			p.mu.Unlock()
			return nil
		}
	}

	p.logger.Error("failed to load stats", "error", err)
	p.mu.Lock()
	p.view.Total = LoadErrorText
	p.polling = false
	p.mu.Unlock()
	return err
}

// Poll refreshes the total. Errors are logged and leave the previous text.
// It reports whether the displayed total changed.
func (p *Panel) Poll(ctx context.Context) bool {
	stats, err := p.api.Stats(ctx)
	if err != nil {
		p.logger.Warn("failed to update total time", "error", err)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.view.Total == stats.Formatted {
		return false
	}
	p.view.Total = stats.Formatted
	return true
}

// Toggle flips the milliseconds preference.
func (p *Panel) Toggle(ctx context.Context) error {
	show := !p.View().ShowMilliseconds
	prefs, err := p.api.SetShowMilliseconds(ctx, show)
	if err != nil {
		p.logger.Error("failed to update milliseconds setting", "error", err)
		return err
	}

	p.mu.Lock()
	p.view.ShowMilliseconds = prefs.ShowMilliseconds
	p.mu.Unlock()
	return nil
}

// Reset clears the statistics and reloads the panel.
func (p *Panel) Reset(ctx context.Context) error {
	if _, err := p.api.Reset(ctx); err != nil {
		p.logger.Error("failed to reset stats", "error", err)
		return err
	}
	return p.Load(ctx)
}

// Run loads the panel and serves commands read from in until ctx is done,
// in reaches EOF or the user quits. Commands: m toggles milliseconds,
// r resets after a y/N confirmation, q quits.
func (p *Panel) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go readLines(ctx, in, lines)

	_ = p.Load(ctx)
	p.render()

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	confirming := false
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.Chan():
			if p.Polling() && p.Poll(ctx) {
				p.render()
			}

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd := strings.ToLower(strings.TrimSpace(line))

			if confirming {
				confirming = false
				if cmd == "y" || cmd == "yes" {
					if err := p.Reset(ctx); err != nil {
						fmt.Fprintln(p.out, ResetErrorText)
					}
				}
				p.render()
				continue
			}

			switch cmd {
			case "m":
				_ = p.Toggle(ctx)
				p.render()
			case "r":
				confirming = true
				fmt.Fprint(p.out, ConfirmReset+" [y/N] ")
			case "q":
				return nil
			case "":
				p.render()
			default:
				fmt.Fprintf(p.out, "unknown command %q\n", cmd)
			}
		}
	}
}

func (p *Panel) render() {
	v := p.View()
	ms := "off"
	if v.ShowMilliseconds {
		ms = "on"
	}
	fmt.Fprintf(p.out, "Total watch time: %s | milliseconds: %s | [m] toggle [r] reset [q] quit\n", v.Total, ms)
}

func readLines(ctx context.Context, in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
