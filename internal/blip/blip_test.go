package blip

import "testing"

func TestBuffer_IdentityRoundTrip(t *testing.T) {
	b := NewBuffer(64)
	b.SetRates(4194304, 44100)
	b.AddDelta(0, 1000)
	b.AddDelta(2048, -1000)
	b.EndFrame(4096)

	out := make([]int16, 22)
	n := b.ReadSamples(out, len(out))
	if n == 0 {
		t.Fatalf("ReadSamples returned 0 samples")
	}
	var sum int32
	for i := 0; i < n; i++ {
		sum += int32(out[i])
	}
	if sum > 1 || sum < -1 {
		t.Fatalf("integrated amplitude got %d want within +-1 of zero", sum)
	}
}

func TestBuffer_SamplesAvailGrows(t *testing.T) {
	b := NewBuffer(64)
	b.SetRates(4194304, 44100)
	if b.SamplesAvail() != 0 {
		t.Fatalf("fresh buffer should have 0 samples available")
	}
	b.EndFrame(4194304 / 100)
	if b.SamplesAvail() == 0 {
		t.Fatalf("expected samples to become available after EndFrame")
	}
}

func TestBuffer_ClearResets(t *testing.T) {
	b := NewBuffer(64)
	b.SetRates(4194304, 44100)
	b.AddDelta(0, 500)
	b.EndFrame(4096)
	if b.SamplesAvail() == 0 {
		t.Fatalf("expected samples available before Clear")
	}
	b.Clear()
	if b.SamplesAvail() != 0 {
		t.Fatalf("Clear should reset samples available to 0")
	}
}
