package gameboy

// Config holds machine-level options a frontend may toggle.
type Config struct {
	Trace bool // log every instruction (very slow; debugging only)

	// LimitFPS paces Run to 60 frames/sec. With it false, Run steps frames
	// back-to-back as fast as the host can manage, useful for headless
	// batch replay or fast-forward.
	LimitFPS bool

	// UseFetcherBG is carried for frontend compatibility. The PPU's DMG
	// background path always renders through the pixel fetcher/FIFO now
	// (see internal/ppu/render.go); toggling this no longer changes
	// rendering, but the setting is kept so existing UI code and saved
	// preferences keep working.
	UseFetcherBG bool
}
