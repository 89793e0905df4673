package ui

// Config contains window and input related settings.
type Config struct {
	Title string // window title
	Scale int    // integer upscaling factor
	Mute  bool   // run without audio output
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "v32emu"
	}
	if c.Scale <= 0 {
		c.Scale = 2
	}
}
