package gameboy

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gbcore/gbcore/internal/input"
)

// frameInterval paces Run when cfg.LimitFPS is set; the DMG/CGB PPU redraws
// at close to 59.7 Hz, but 60 Hz is close enough for pacing purposes.
const frameInterval = time.Second / 60

// SubmitCommand enqueues cmd for execution on Run's emulation goroutine,
// for callers driving a Machine from a separate goroutine (e.g. a network
// or scripted-input frontend) instead of calling StepFrame/SetButtons
// directly themselves.
func (m *Machine) SubmitCommand(cmd input.Command) {
	m.commands.Submit(cmd)
}

// Run drives the machine continuously until ctx is canceled, applying any
// commands submitted via SubmitCommand before each frame. A single goroutine
// under an errgroup applies every queued command and then steps a frame
// (paced to 60 FPS when cfg.LimitFPS is set, otherwise as fast as possible);
// canceling ctx stops it and Run returns ctx.Err().
func (m *Machine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var ticker *time.Ticker
		var tick <-chan time.Time
		if m.cfg.LimitFPS {
			ticker = time.NewTicker(frameInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case cmd := <-m.commands.Commands():
				cmd()
				continue
			default:
			}
			if tick != nil {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-tick:
				}
			}
			m.StepFrame()
		}
	})

	return g.Wait()
}
