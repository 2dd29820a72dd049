// Package window is the desktop front-end: an Ebiten game whose Update drives
// one scheduler frame and whose Draw blits the shaded surface.
package window

import (
	"fmt"
	"time"

	"github.com/Distortions81/ripple-field/internal/pointer"
	"github.com/Distortions81/ripple-field/internal/probe"
	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/scene"
	"github.com/Distortions81/ripple-field/internal/scheduler"
	"github.com/Distortions81/ripple-field/internal/shade"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"
)

// Options configure a Game.
type Options struct {
	Width, Height int
	Scale         int
	TPS           int
	Title         string
	Camera        scene.Camera
	Surface       scene.Surface
	Style         shade.Style
	Pointer       pointer.Options
	StepsPerFrame int
	Raw           bool
	Gain          float32
	Debug         bool
	// Probe, when set, is fed every frame and played through the audio device.
	Probe       *probe.Probe
	AudioBuffer time.Duration
	Logger      *zap.Logger
}

// Game implements ebiten.Game.
type Game struct {
	opts   Options
	logger *zap.Logger

	sched  *scheduler.Scheduler
	mapper *pointer.Mapper
	shader *shade.Shader

	pixels []byte

	raw       *ebiten.Image
	rawPixels []byte
	levels    []float32

	cursorX, cursorY int
	cursorSeen       bool

	audioPlayer *audio.Player
}

// New builds the game around sim.
func New(sim *ripple.Simulation, opts Options) *Game {
	if opts.Style == (shade.Style{}) {
		opts.Style = shade.DefaultStyle()
	}
	if opts.Scale < 1 {
		opts.Scale = 1
	}
	if opts.TPS <= 0 {
		opts.TPS = 60
	}
	if opts.Gain <= 0 {
		opts.Gain = 40
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	g := &Game{
		opts:   opts,
		logger: opts.Logger.Named("window"),
		mapper: pointer.NewMapper(sim.Queue(), opts.Pointer),
		shader: shade.New(opts.Style, opts.Camera, opts.Surface, opts.Width, opts.Height),
		pixels: make([]byte, opts.Width*opts.Height*4),
	}
	g.sched = scheduler.New(sim,
		scheduler.WithIngester(scheduler.IngestFunc(g.ingest)),
		scheduler.WithRenderer(scheduler.RenderFunc(g.render)),
		scheduler.WithStepsPerFrame(opts.StepsPerFrame),
		scheduler.WithLogger(g.logger),
	)
	g.logger.Info("window ready",
		zap.Int("width", opts.Width),
		zap.Int("height", opts.Height),
		zap.Float64("coverage", g.shader.Coverage()),
		zap.String("integrator", sim.Integrator().Name()))
	return g
}

// Run opens the window and blocks until it is closed.
func Run(g *Game) error {
	ebiten.SetWindowSize(g.opts.Width*g.opts.Scale, g.opts.Height*g.opts.Scale)
	ebiten.SetWindowTitle(g.opts.Title)
	ebiten.SetTPS(g.opts.TPS)
	if g.opts.Probe != nil {
		g.startAudio()
	}
	defer g.Close()
	return ebiten.RunGame(g)
}

// startAudio plays the probe stream. Failure leaves the game silent.
func (g *Game) startAudio() {
	ctx := audio.NewContext(probe.SampleRate)
	player, err := ctx.NewPlayer(g.opts.Probe.Stream())
	if err != nil {
		g.logger.Warn("audio player creation failed", zap.Error(err))
		return
	}
	if g.opts.AudioBuffer > 0 {
		player.SetBufferSize(g.opts.AudioBuffer)
	}
	player.Play()
	g.audioPlayer = player
}

// Update handles input and advances the simulation by one frame.
func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) || inpututil.IsKeyJustPressed(ebiten.KeyQ) {
		return ebiten.Termination
	}
	g.handleControls()
	return g.sched.Frame(time.Now())
}

// handleControls processes reset, view and steps-per-frame hotkeys.
func (g *Game) handleControls() {
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.sched.Reset()
		g.mapper.Reset()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyM) {
		g.opts.Raw = !g.opts.Raw
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF3) {
		g.opts.Debug = !g.opts.Debug
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyMinus) || inpututil.IsKeyJustPressed(ebiten.KeyKPSubtract) {
		g.sched.SetStepsPerFrame(g.sched.StepsPerFrame() - 1)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEqual) || inpututil.IsKeyJustPressed(ebiten.KeyKPAdd) {
		g.sched.SetStepsPerFrame(g.sched.StepsPerFrame() + 1)
	}
}

// ingest forwards cursor motion. Only moves produce events.
func (g *Game) ingest(now time.Time) {
	x, y := ebiten.CursorPosition()
	if g.cursorSeen && x == g.cursorX && y == g.cursorY {
		return
	}
	g.cursorX, g.cursorY, g.cursorSeen = x, y, true
	if x < 0 || y < 0 || x >= g.opts.Width || y >= g.opts.Height {
		return
	}
	g.mapper.HandleMove(pointer.Event{
		X:         float64(x) + 0.5,
		Y:         float64(y) + 0.5,
		ViewportW: g.opts.Width,
		ViewportH: g.opts.Height,
		At:        now,
		Camera:    g.opts.Camera,
		Surface:   g.opts.Surface,
	})
}

func (g *Game) render(v ripple.View) error {
	if g.opts.Probe != nil {
		if err := g.opts.Probe.Render(v); err != nil {
			return err
		}
	}
	if g.opts.Raw {
		g.renderRaw(v)
		return nil
	}
	return g.shader.Shade(v, g.pixels)
}

// renderRaw writes the grid as greyscale, origin at the bottom-left.
func (g *Game) renderRaw(v ripple.View) {
	w, h := v.Width(), v.Height()
	if g.raw == nil || len(g.levels) != w*h {
		g.raw = ebiten.NewImage(w, h)
		g.levels = make([]float32, w*h)
		g.rawPixels = make([]byte, w*h*4)
	}
	v.Normalize(g.levels, g.opts.Gain)
	for y := 0; y < h; y++ {
		src := g.levels[y*w : (y+1)*w]
		row := g.rawPixels[(h-1-y)*w*4:]
		for x, l := range src {
			c := byte(l*255 + 0.5)
			o := x * 4
			row[o] = c
			row[o+1] = c
			row[o+2] = c
			row[o+3] = 0xff
		}
	}
}

// Draw renders the last frame and the optional debug overlay.
func (g *Game) Draw(screen *ebiten.Image) {
	if g.opts.Raw && g.raw != nil {
		g.raw.WritePixels(g.rawPixels)
		op := &ebiten.DrawImageOptions{}
		rw, rh := g.raw.Bounds().Dx(), g.raw.Bounds().Dy()
		op.GeoM.Scale(float64(g.opts.Width)/float64(rw), float64(g.opts.Height)/float64(rh))
		screen.DrawImage(g.raw, op)
	} else {
		screen.WritePixels(g.pixels)
	}

	if g.opts.Debug {
		counts := g.mapper.Counts()
		q := g.sched.Simulation().Queue().Stats()
		msg := fmt.Sprintf("FPS: %.1f  TPS: %.1f\nSteps/frame: %d (+/-)\nFrame: %.2f ms\nSources: %d last, %d queued, %d dropped\nPointer: %d accepted, %d throttled, %d missed\n[R]eset [M]ode [F3] debug",
			ebiten.ActualFPS(), ebiten.ActualTPS(),
			g.sched.StepsPerFrame(),
			g.sched.LastFrameTime().Seconds()*1000,
			g.sched.LastSources(), q.Enqueued, q.Dropped,
			counts.Accepted, counts.Throttled, counts.Missed)
		ebitenutil.DebugPrint(screen, msg)
	}
}

// Layout reports the logical screen size used by Ebiten.
func (g *Game) Layout(_, _ int) (int, int) { return g.opts.Width, g.opts.Height }

// Close stops audio and releases the simulation.
func (g *Game) Close() {
	if g.audioPlayer != nil {
		_ = g.audioPlayer.Close()
		g.audioPlayer = nil
	}
	g.sched.Close()
}
