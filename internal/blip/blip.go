// Package blip implements a band-limited delta resampler: it converts
// amplitude-change events that occur at arbitrary integer clock times into
// evenly spaced 16-bit PCM samples at a target rate, suppressing aliasing
// with a precomputed windowed-sinc impulse.
package blip

const (
	preShift  = 32
	timeBits  = preShift + 20
	bassShift = 9
	endExtra  = 2
	halfWidth = 8
	bufExtra  = halfWidth*2 + endExtra
	phaseBits = 5
	phaseCnt  = 1 << phaseBits
	deltaBits = 15
	deltaUnit = 1 << deltaBits
	fracBits  = timeBits - preShift

	maxSample = 1<<15 - 1
	minSample = -1 << 15

	timeUnit = uint64(1) << timeBits

	// MaxRatio bounds clockRate/sampleRate for a given sample rate.
	MaxRatio = 1 << 20
)

// blStep is the literal 33x8 windowed-sinc kernel table; bit-exact, not
// re-derived.
var blStep = [phaseCnt + 1][halfWidth]int16{
	{43, -115, 350, -488, 1136, -914, 5861, 21022},
	{44, -118, 348, -473, 1076, -799, 5274, 21001},
	{45, -121, 344, -454, 1011, -677, 4706, 20936},
	{46, -122, 336, -431, 942, -549, 4156, 20829},
	{47, -123, 327, -404, 868, -418, 3629, 20679},
	{47, -122, 316, -375, 792, -285, 3124, 20488},
	{47, -120, 303, -344, 714, -151, 2644, 20256},
	{46, -117, 289, -310, 634, -17, 2188, 19985},
	{46, -114, 273, -275, 553, 117, 1758, 19675},
	{44, -108, 255, -237, 471, 247, 1356, 19327},
	{43, -103, 237, -199, 390, 373, 981, 18944},
	{42, -98, 218, -160, 310, 495, 633, 18527},
	{40, -91, 198, -121, 231, 611, 314, 18078},
	{38, -84, 178, -81, 153, 722, 22, 17599},
	{36, -76, 157, -43, 80, 824, -241, 17092},
	{34, -68, 135, -3, 8, 919, -476, 16558},
	{32, -61, 115, 34, -60, 1006, -683, 16001},
	{29, -52, 94, 70, -123, 1083, -862, 15422},
	{27, -44, 73, 106, -184, 1152, -1015, 14824},
	{25, -36, 53, 139, -239, 1211, -1142, 14210},
	{22, -27, 34, 170, -290, 1261, -1244, 13582},
	{20, -20, 16, 199, -335, 1301, -1322, 12942},
	{18, -12, -3, 226, -375, 1331, -1376, 12293},
	{15, -4, -19, 250, -410, 1351, -1408, 11638},
	{13, 3, -35, 272, -439, 1361, -1419, 10979},
	{11, 9, -49, 292, -464, 1362, -1410, 10319},
	{9, 16, -63, 309, -483, 1354, -1383, 9660},
	{7, 22, -75, 322, -496, 1337, -1339, 9005},
	{6, 26, -85, 333, -504, 1312, -1280, 8355},
	{4, 31, -94, 341, -507, 1278, -1205, 7713},
	{3, 35, -102, 347, -506, 1238, -1119, 7082},
	{1, 40, -110, 350, -499, 1190, -1021, 6464},
	{0, 43, -115, 350, -488, 1136, -914, 5861},
}

// Buffer accumulates amplitude deltas and resamples them into fixed-rate
// 16-bit PCM on demand.
type Buffer struct {
	factor     uint64
	offset     uint64
	avail      uint32
	size       uint32
	integrator int32
	buf        []int32
}

// NewBuffer allocates a buffer that can hold at most sampleCount samples.
func NewBuffer(sampleCount int) *Buffer {
	b := &Buffer{
		size: uint32(sampleCount),
		buf:  make([]int32, sampleCount+bufExtra),
	}
	b.factor = timeUnit / MaxRatio
	b.offset = b.factor / 2
	return b
}

// SetRates configures the clock-to-sample-rate ratio.
func (b *Buffer) SetRates(clockHz, sampleHz float64) {
	factor := float64(timeUnit) * sampleHz / clockHz
	b.factor = uint64(factor + 0.999999999) // ceil without importing math
}

// Clear resets the integrator, buffer, and running offset.
func (b *Buffer) Clear() {
	b.offset = b.factor / 2
	b.avail = 0
	b.integrator = 0
	for i := range b.buf {
		b.buf[i] = 0
	}
}

// SamplesAvail reports how many resampled PCM samples are ready to read.
func (b *Buffer) SamplesAvail() int { return int(b.avail) }

// AddDelta records an amplitude change of delta at the given clock time.
func (b *Buffer) AddDelta(clockTime uint32, delta int32) {
	fixed := uint32((uint64(clockTime)*b.factor + b.offset) >> preShift)
	out := b.avail + (fixed >> fracBits)

	const phaseShift = fracBits - phaseBits
	phase := (fixed >> phaseShift) & (phaseCnt - 1)
	in0 := blStep[phase]
	in1 := blStep[phase+1]
	rev0 := blStep[phaseCnt-phase]
	rev1 := blStep[phaseCnt-phase-1]

	interpolate := int32((fixed >> (phaseShift - deltaBits)) & (deltaUnit - 1))
	delta2 := (delta * interpolate) >> deltaBits
	d1 := delta - delta2

	o := int(out)
	for i := 0; i < halfWidth; i++ {
		b.buf[o+i] += int32(in0[i])*d1 + int32(in1[i])*delta2
	}
	for i := 0; i < halfWidth; i++ {
		b.buf[o+halfWidth+i] += int32(rev0[halfWidth-1-i])*d1 + int32(rev1[halfWidth-1-i])*delta2
	}
}

// EndFrame advances the running offset by clockDuration clocks, making any
// whole samples produced available for reading.
func (b *Buffer) EndFrame(clockDuration uint32) {
	off := uint64(clockDuration)*b.factor + b.offset
	b.avail += uint32(off >> timeBits)
	b.offset = off & (timeUnit - 1)
}

func (b *Buffer) removeSamples(count uint32) {
	remain := b.avail + bufExtra - count
	b.avail -= count
	copy(b.buf[0:remain], b.buf[count:count+remain])
	for i := remain; i < remain+count; i++ {
		b.buf[i] = 0
	}
}

// ReadSamples integrates and removes up to count samples into out (16-bit
// signed), applying a running one-pole high-pass filter.
func (b *Buffer) ReadSamples(out []int16, count int) int {
	n := uint32(count)
	if n > b.avail {
		n = b.avail
	}
	if n == 0 {
		return 0
	}
	sum := b.integrator
	for i := uint32(0); i < n; i++ {
		s := sum >> deltaBits
		if s > maxSample {
			s = maxSample
		} else if s < minSample {
			s = minSample
		}
		out[i] = int16(s)
		sum += b.buf[i]
		sum -= s << (deltaBits - bassShift)
	}
	b.integrator = sum
	b.removeSamples(n)
	return int(n)
}
