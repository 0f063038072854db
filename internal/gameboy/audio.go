package gameboy

// APUBufferedStereo returns the number of resampled stereo frames currently
// queued, for a frontend's audio player to decide how much to pull.
func (m *Machine) APUBufferedStereo() int {
	if m.bus == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// APUPullStereo removes and returns up to max interleaved [l0,r0,l1,r1,...]
// int16 stereo frames.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m.bus == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// APUClearAudioLatency discards all buffered audio, so playback resumes
// from whatever the emulator produces next instead of a stale backlog.
func (m *Machine) APUClearAudioLatency() {
	if m.bus == nil {
		return
	}
	m.bus.APU().DropStereo(m.bus.APU().StereoAvailable())
}

// APUCapBufferedStereo trims the buffered frame count down to maxFrames,
// dropping the oldest samples first, to bound audio latency.
func (m *Machine) APUCapBufferedStereo(maxFrames int) {
	if m.bus == nil {
		return
	}
	a := m.bus.APU()
	if n := a.StereoAvailable() - maxFrames; n > 0 {
		a.DropStereo(n)
	}
}
