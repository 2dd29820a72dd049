// Package tui renders the water surface in a terminal and turns mouse motion
// into ripples. Each cell shows two vertically stacked pixels using a half
// block glyph.
package tui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Distortions81/ripple-field/internal/pointer"
	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/scene"
	"github.com/Distortions81/ripple-field/internal/scheduler"
	"github.com/Distortions81/ripple-field/internal/shade"
	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"
)

const (
	upperHalf   = '▀'
	eventBuffer = 256
)

// Options configure an App.
type Options struct {
	Camera        scene.Camera
	Surface       scene.Surface
	Style         shade.Style
	Pointer       pointer.Options
	StepsPerFrame int
	// Raw shows the grid top-down in greyscale instead of the shaded view.
	Raw    bool
	Gain   float32
	Status bool
	Logger *zap.Logger
}

// App is a terminal front-end driving one scheduler.
type App struct {
	screen tcell.Screen
	opts   Options
	logger *zap.Logger

	sched  *scheduler.Scheduler
	mapper *pointer.Mapper
	shader *shade.Shader

	events chan tcell.Event
	cols   int
	rows   int
	quit   bool
}

// New wraps an initialised screen. Run finalises it.
func New(screen tcell.Screen, sim *ripple.Simulation, opts Options) *App {
	if opts.Style == (shade.Style{}) {
		opts.Style = shade.DefaultStyle()
	}
	if opts.Gain <= 0 {
		opts.Gain = 40
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	screen.EnableMouse(tcell.MouseMotionEvents)
	screen.HideCursor()

	a := &App{
		screen: screen,
		opts:   opts,
		logger: opts.Logger.Named("tui"),
		mapper: pointer.NewMapper(sim.Queue(), opts.Pointer),
		events: make(chan tcell.Event, eventBuffer),
	}
	a.cols, a.rows = screen.Size()
	a.shader = shade.New(opts.Style, opts.Camera, opts.Surface, a.cols, a.rows*2)
	a.sched = scheduler.New(sim,
		scheduler.WithIngester(scheduler.IngestFunc(a.ingest)),
		scheduler.WithRenderer(scheduler.RenderFunc(a.render)),
		scheduler.WithStepsPerFrame(opts.StepsPerFrame),
		scheduler.WithLogger(a.logger),
	)
	return a
}

// Scheduler exposes the frame scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Counts returns pointer outcome tallies.
func (a *App) Counts() pointer.Counts { return a.mapper.Counts() }

// Quit reports whether the user asked to leave.
func (a *App) Quit() bool { return a.quit }

// Run draws a frame per tick until the user quits, ctx is done or ticks is
// closed. The screen is finalised on return.
func (a *App) Run(ctx context.Context, ticks <-chan time.Time) error {
	stop := a.listen()
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now, ok := <-ticks:
			if !ok {
				return nil
			}
			if err := a.Frame(now); err != nil {
				return err
			}
			if a.quit {
				return nil
			}
		}
	}
}

// Frame runs one scheduler frame and presents it.
func (a *App) Frame(now time.Time) error {
	return a.sched.Frame(now)
}

// listen forwards screen events until the returned stop is called. stop
// finalises the screen, which unblocks PollEvent.
func (a *App) listen() (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			ev := a.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case a.events <- ev:
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			a.screen.Fini()
			wg.Wait()
		})
	}
}

func (a *App) ingest(time.Time) {
	for {
		select {
		case ev := <-a.events:
			a.handle(ev)
		default:
			return
		}
	}
}

func (a *App) handle(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventMouse:
		x, y := ev.Position()
		a.mapper.HandleMove(pointer.Event{
			X:         float64(x) + 0.5,
			Y:         float64(2*y) + 1,
			ViewportW: a.cols,
			ViewportH: a.rows * 2,
			At:        ev.When(),
			Camera:    a.opts.Camera,
			Surface:   a.opts.Surface,
		})
	case *tcell.EventKey:
		a.key(ev)
	case *tcell.EventResize:
		a.screen.Sync()
		a.cols, a.rows = a.screen.Size()
		a.shader.Resize(a.cols, a.rows*2)
	}
}

func (a *App) key(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		a.quit = true
		return
	case tcell.KeyRune:
	default:
		return
	}
	switch ev.Rune() {
	case 'q':
		a.quit = true
	case 'r':
		a.sched.Reset()
		a.mapper.Reset()
		a.logger.Debug("field reset")
	case 'm':
		a.opts.Raw = !a.opts.Raw
	case '+', '=':
		a.sched.SetStepsPerFrame(a.sched.StepsPerFrame() + 1)
	case '-', '_':
		a.sched.SetStepsPerFrame(a.sched.StepsPerFrame() - 1)
	}
}

func (a *App) render(v ripple.View) error {
	for row := 0; row < a.rows; row++ {
		for col := 0; col < a.cols; col++ {
			top := a.pixel(v, col, 2*row)
			bottom := a.pixel(v, col, 2*row+1)
			a.screen.SetContent(col, row, upperHalf, nil,
				tcell.StyleDefault.Foreground(top).Background(bottom))
		}
	}
	if a.opts.Status {
		a.status()
	}
	a.screen.Show()
	return nil
}

func (a *App) pixel(v ripple.View, x, y int) tcell.Color {
	if a.opts.Raw {
		h := a.rows * 2
		var u, w float64
		if a.cols > 1 {
			u = float64(x) / float64(a.cols-1)
		}
		if h > 1 {
			w = 1 - float64(y)/float64(h-1)
		}
		level := 0.5 + 0.5*clampUnit(v.Sample(u, w)*a.opts.Gain)
		g := int32(level * 255)
		return tcell.NewRGBColor(g, g, g)
	}
	c := a.shader.At(v, x, y)
	return tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B))
}

func (a *App) status() {
	text := fmt.Sprintf(" steps/frame %d  sources %d  %.2f ms  [q]uit [r]eset [m]ode [+/-] ",
		a.sched.StepsPerFrame(), a.sched.LastSources(),
		a.sched.LastFrameTime().Seconds()*1000)
	style := tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorBlack)
	for i, r := range []rune(text) {
		if i >= a.cols {
			break
		}
		a.screen.SetContent(i, a.rows-1, r, nil, style)
	}
}

func clampUnit(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
