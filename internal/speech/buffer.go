// Package speech owns the VAD -> STT -> hint-routing pipeline: it
// consumes raw audio frames per session, accumulates speech into
// fixed-capacity buffers, transcribes completed segments, scrubs PII,
// persists the result, and evaluates hint-router triggers.
package speech

// RingBuffer accumulates PCM16LE samples for one session up to a fixed
// capacity. Once full, it shifts left (dropping the oldest samples)
// rather than growing, so a stalled flush never grows memory unbounded.
type RingBuffer struct {
	samples  []int16
	capacity int
	writePtr int
}

// NewRingBuffer allocates a buffer sized for maxSeconds of audio at
// sampleRate (mono, 16-bit).
func NewRingBuffer(sampleRate, maxSeconds int) *RingBuffer {
	capacity := sampleRate * maxSeconds
	return &RingBuffer{
		samples:  make([]int16, capacity),
		capacity: capacity,
	}
}

// AddPCM16 appends little-endian PCM16 bytes, shifting the buffer left
// if the incoming chunk would overflow capacity.
func (b *RingBuffer) AddPCM16(chunk []byte) {
	n := len(chunk) / 2
	if n == 0 {
		return
	}

	if b.writePtr+n > b.capacity {
		shift := b.writePtr + n - b.capacity
		if shift > b.capacity {
			shift = b.capacity
		}
		copy(b.samples, b.samples[shift:b.writePtr])
		b.writePtr -= shift
		if b.writePtr < 0 {
			b.writePtr = 0
		}
	}

	for i := 0; i < n && b.writePtr < b.capacity; i++ {
		lo := uint16(chunk[2*i])
		hi := uint16(chunk[2*i+1])
		b.samples[b.writePtr] = int16(lo | hi<<8)
		b.writePtr++
	}
}

// Samples returns the in-use portion of the buffer (not a copy; callers
// that hand data across goroutine boundaries must copy before Clear).
func (b *RingBuffer) Samples() []int16 {
	return b.samples[:b.writePtr]
}

// Float32Samples converts the in-use portion to normalized float32, the
// shape the VAD detector and STT encoders expect.
func (b *RingBuffer) Float32Samples() []float32 {
	out := make([]float32, b.writePtr)
	for i, s := range b.samples[:b.writePtr] {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// PCM16Bytes encodes the in-use portion back to little-endian bytes, for
// handing off to an STT client that wants raw PCM.
func (b *RingBuffer) PCM16Bytes() []byte {
	out := make([]byte, b.writePtr*2)
	for i, s := range b.samples[:b.writePtr] {
		out[2*i] = byte(uint16(s))
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// Len reports the number of buffered samples.
func (b *RingBuffer) Len() int { return b.writePtr }

// DurationSeconds reports how much audio is buffered, given sampleRate.
func (b *RingBuffer) DurationSeconds(sampleRate int) float64 {
	return float64(b.writePtr) / float64(sampleRate)
}

// Clear resets the buffer without reallocating.
func (b *RingBuffer) Clear() {
	b.writePtr = 0
}
