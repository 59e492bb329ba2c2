package app

import (
	"context"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/dshills/stormscript/internal/keybind"
)

// maxScrollback bounds the lines a console keeps.
const maxScrollback = 1000

const prompt = "> "

// Console is an interactive terminal front end. Typed lines are evaluated
// as scripts; bound keys run their macros. It doubles as the io.Writer for
// script print output.
type Console struct {
	screen tcell.Screen

	mu      sync.Mutex
	lines   []string
	partial string

	input []rune
	style tcell.Style
}

// NewConsole creates a console drawing on screen.
func NewConsole(screen tcell.Screen) *Console {
	return &Console{
		screen: screen,
		style:  tcell.StyleDefault,
	}
}

// Write appends script output to the scrollback.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.partial + string(p)
	parts := strings.Split(text, "\n")
	c.partial = parts[len(parts)-1]
	c.appendLocked(parts[:len(parts)-1]...)
	return len(p), nil
}

// Println adds one line to the scrollback.
func (c *Console) Println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(strings.Split(line, "\n")...)
}

func (c *Console) appendLocked(lines ...string) {
	c.lines = append(c.lines, lines...)
	if over := len(c.lines) - maxScrollback; over > 0 {
		c.lines = append(c.lines[:0:0], c.lines[over:]...)
	}
}

// Lines returns a copy of the scrollback, including unterminated output.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]string(nil), c.lines...)
	if c.partial != "" {
		out = append(out, c.partial)
	}
	return out
}

// Input returns the line being edited.
func (c *Console) Input() string {
	return string(c.input)
}

// Run initializes the screen, feeds terminal events to app and runs the
// application event loop until the user quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context, app *Application) error {
	if err := c.screen.Init(); err != nil {
		return &InitError{Component: "console", Err: err}
	}
	defer c.screen.Fini()
	c.draw()

	go func() {
		for {
			ev := c.screen.PollEvent()
			if ev == nil {
				return
			}
			if !app.Post(func(ctx context.Context) error { return c.Handle(ctx, app, ev) }) {
				return
			}
		}
	}()

	return app.Run(ctx)
}

// Handle processes one terminal event and redraws. It returns ErrQuit when
// the user asks to leave.
func (c *Console) Handle(ctx context.Context, app *Application, ev tcell.Event) error {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		c.screen.Sync()
	case *tcell.EventKey:
		if err := c.handleKey(ctx, app, ev); err != nil {
			return err
		}
	}
	c.draw()
	return nil
}

func (c *Console) handleKey(ctx context.Context, app *Application, ev *tcell.EventKey) error {
	switch keybind.EventName(ev) {
	case "Ctrl+C":
		return ErrQuit
	case "Ctrl+D":
		if len(c.input) == 0 {
			return ErrQuit
		}
	}

	handled, err := app.Keys().Handle(ctx, ev, 1)
	if err != nil {
		c.Println("error: " + err.Error())
	}
	if handled {
		return nil
	}

	switch ev.Key() {
	case tcell.KeyEnter:
		c.submit(ctx, app)
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if n := len(c.input); n > 0 {
			c.input = c.input[:n-1]
		}
	case tcell.KeyEscape:
		c.input = c.input[:0]
	case tcell.KeyRune:
		if ev.Modifiers()&(tcell.ModCtrl|tcell.ModAlt) == 0 {
			c.input = append(c.input, ev.Rune())
		}
	}
	return nil
}

func (c *Console) submit(ctx context.Context, app *Application) {
	line := string(c.input)
	c.input = c.input[:0]
	c.Println(prompt + line)
	if strings.TrimSpace(line) == "" {
		return
	}

	res, err := app.Eval(ctx, line, 1)
	if err != nil {
		c.Println("error: " + err.Error())
		return
	}
	if res.Value != nil {
		c.Println(app.Format(res.Value))
	}
}

func (c *Console) draw() {
	s := c.screen
	s.Clear()
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return
	}

	lines := c.Lines()
	rows := h - 1
	if len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}
	for y, line := range lines {
		c.drawText(0, y, w, line)
	}

	in := prompt + string(c.input)
	x := c.drawText(0, h-1, w, in)
	s.ShowCursor(x, h-1)
	s.Show()
}

// drawText draws text from column x on row y, clipped at width, and returns
// the column after the last cell.
func (c *Console) drawText(x, y, width int, text string) int {
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		runes := gr.Runes()
		cw := gr.Width()
		if x+cw > width {
			break
		}
		c.screen.SetContent(x, y, runes[0], runes[1:], c.style)
		x += cw
	}
	return x
}
