package ui

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/v32emu/v32emu/internal/console"
	"github.com/v32emu/v32emu/internal/gamepads"
	"github.com/v32emu/v32emu/internal/vm"
)

// App is the windowed front-end: it steps the console once per ebiten
// tick, uploads the rasterizer's framebuffer, streams SPU audio and maps
// the keyboard onto gamepad 1.
type App struct {
	cfg      Config
	console  *console.Console
	renderer *Renderer

	frame  *ebiten.Image
	player *audio.Player
	runErr error
}

func NewApp(cfg Config, c *console.Console, r *Renderer) *App {
	cfg.Defaults()
	return &App{cfg: cfg, console: c, renderer: r}
}

// Run opens the window and drives the machine until the window closes or
// a frame fails.
func (a *App) Run() error {
	ebiten.SetWindowSize(vm.ScreenWidth*a.cfg.Scale, vm.ScreenHeight*a.cfg.Scale)
	ebiten.SetWindowTitle(a.cfg.Title)
	ebiten.SetTPS(vm.FramesPerSecond)
	a.frame = ebiten.NewImage(vm.ScreenWidth, vm.ScreenHeight)

	if !a.cfg.Mute {
		ctx := audio.NewContext(vm.SampleRate)
		player, err := ctx.NewPlayer(newSPUStream(a.console))
		if err != nil {
			return fmt.Errorf("audio player: %w", err)
		}
		a.player = player
		a.player.Play()
	}

	if err := ebiten.RunGame(a); err != nil {
		return err
	}
	return a.runErr
}

func (a *App) Update() error {
	a.console.SetGamepadState(0, gamepads.State{
		Connected: true,
		Buttons:   keyboardButtons(),
	})
	if err := a.console.RunNextFrame(); err != nil {
		a.runErr = err
		return ebiten.Termination
	}
	return nil
}

func (a *App) Draw(screen *ebiten.Image) {
	a.frame.WritePixels(a.renderer.Pixels())
	screen.DrawImage(a.frame, nil)
}

func (a *App) Layout(int, int) (int, int) {
	return vm.ScreenWidth, vm.ScreenHeight
}

func keyboardButtons() int32 {
	var b int32
	for _, m := range keyMap {
		if ebiten.IsKeyPressed(m.key) {
			b |= m.button
		}
	}
	return b
}

var keyMap = []struct {
	key    ebiten.Key
	button int32
}{
	{ebiten.KeyArrowLeft, gamepads.ButtonLeft},
	{ebiten.KeyArrowRight, gamepads.ButtonRight},
	{ebiten.KeyArrowUp, gamepads.ButtonUp},
	{ebiten.KeyArrowDown, gamepads.ButtonDown},
	{ebiten.KeyX, gamepads.ButtonA},
	{ebiten.KeyZ, gamepads.ButtonB},
	{ebiten.KeyS, gamepads.ButtonX},
	{ebiten.KeyA, gamepads.ButtonY},
	{ebiten.KeyQ, gamepads.ButtonL},
	{ebiten.KeyW, gamepads.ButtonR},
	{ebiten.KeyEnter, gamepads.ButtonStart},
}
