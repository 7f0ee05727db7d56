// Package window accumulates decoded audio and cuts it into half-overlapping
// analysis windows.
package window

// Defaults for 16 kHz audio: 1.5 s windows over a 3 s cap.
const (
	DefaultWindowSize = 24000
	DefaultMaxLength  = 48000
)

// Buffer is a capacity-bounded FIFO of normalized samples. It is owned by a
// single session and is not safe for concurrent use.
type Buffer struct {
	samples    []float32
	windowSize int
	maxLength  int
	appended   int64
}

// NewBuffer creates an empty buffer. A maxLength below windowSize is raised
// to windowSize so a window can always form.
func NewBuffer(windowSize, maxLength int) *Buffer {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if maxLength < windowSize {
		maxLength = windowSize
	}
	return &Buffer{
		samples:    make([]float32, 0, maxLength),
		windowSize: windowSize,
		maxLength:  maxLength,
	}
}

// Append adds chunk to the tail, then discards the oldest samples beyond
// maxLength.
func (b *Buffer) Append(chunk []float32) {
	if len(chunk) == 0 {
		return
	}
	b.appended += int64(len(chunk))
	b.samples = append(b.samples, chunk...)
	if over := len(b.samples) - b.maxLength; over > 0 {
		b.dropHead(over)
	}
}

// TryExtract copies a full window from the head and drops windowSize/2
// samples. It returns false and leaves the buffer untouched when fewer than
// windowSize samples are buffered.
func (b *Buffer) TryExtract() ([]float32, bool) {
	if len(b.samples) < b.windowSize {
		return nil, false
	}
	w := make([]float32, b.windowSize)
	copy(w, b.samples[:b.windowSize])
	b.dropHead(b.windowSize / 2)
	return w, true
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	return len(b.samples)
}

// Appended returns the cumulative number of samples ever appended.
func (b *Buffer) Appended() int64 {
	return b.appended
}

func (b *Buffer) dropHead(n int) {
	k := copy(b.samples, b.samples[n:])
	b.samples = b.samples[:k]
}
