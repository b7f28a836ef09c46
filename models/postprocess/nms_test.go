package postprocess

import (
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/go-handtrack/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNonMaxSuppression(t *testing.T) {
	unit := images.Box{0, 0, 1, 1}

	tests := []struct {
		name     string
		boxes    []images.Box
		scores   []float32
		cfg      NMSConfig
		expected []int
	}{
		{
			name:     "Fully overlapping keeps the higher score",
			boxes:    []images.Box{unit, unit},
			scores:   []float32{0.8, 0.9},
			cfg:      NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5, ScoreThreshold: 0.5},
			expected: []int{1},
		},
		{
			name: "Disjoint boxes all survive in score order",
			boxes: []images.Box{
				{0, 0, 0.1, 0.1},
				{0.5, 0.5, 0.6, 0.6},
				{0.8, 0.8, 0.9, 0.9},
			},
			scores:   []float32{0.7, 0.95, 0.8},
			cfg:      NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5},
			expected: []int{1, 2, 0},
		},
		{
			name: "Capped at max boxes",
			boxes: []images.Box{
				{0, 0, 0.1, 0.1},
				{0.5, 0.5, 0.6, 0.6},
				{0.8, 0.8, 0.9, 0.9},
			},
			scores:   []float32{0.7, 0.95, 0.8},
			cfg:      NMSConfig{MaxNumBoxes: 2, IoUThreshold: 0.5},
			expected: []int{1, 2},
		},
		{
			name:     "Equal scores keep the lower index",
			boxes:    []images.Box{unit, unit, unit},
			scores:   []float32{0.9, 0.9, 0.9},
			cfg:      NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5},
			expected: []int{0},
		},
		{
			name:     "IoU equal to threshold is kept",
			boxes:    []images.Box{{0, 0, 1, 1}, {0, 0, 1, 0.5}},
			scores:   []float32{0.9, 0.8},
			cfg:      NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5},
			expected: []int{0, 1},
		},
		{
			name:     "NaN scores are discarded",
			boxes:    []images.Box{unit, {0.5, 0.5, 0.6, 0.6}},
			scores:   []float32{math32.NaN(), 0.6},
			cfg:      NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5},
			expected: []int{1},
		},
		{
			name:     "Zero max boxes",
			boxes:    []images.Box{unit},
			scores:   []float32{0.9},
			cfg:      NMSConfig{MaxNumBoxes: 0, IoUThreshold: 0.5},
			expected: []int{},
		},
		{
			name:     "No candidates",
			cfg:      NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5},
			expected: []int{},
		},
	}

	for _, tt := range tests {
		for _, backend := range []Backend{CPU{}, Workers{N: 4}} {
			t.Run(tt.name+"/"+backend.Name(), func(t *testing.T) {
				cfg := tt.cfg
				cfg.Backend = backend
				keep, err := NonMaxSuppression(tt.boxes, tt.scores, cfg)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, keep)
			})
		}
	}
}

// TestNonMaxSuppression_SingleConfidentCandidate covers five candidates where
// only the class-2 candidate clears the score threshold.
func TestNonMaxSuppression_SingleConfidentCandidate(t *testing.T) {
	boxes := []images.Box{
		{0.1, 0.1, 0.4, 0.4},
		{0.2, 0.2, 0.5, 0.5},
		{0.5, 0.5, 0.9, 0.9},
		{0.0, 0.6, 0.3, 0.9},
		{0.6, 0.0, 0.9, 0.3},
	}
	rawScores := []float32{
		0.10, 0.20, 0.30,
		0.05, 0.40, 0.10,
		0.01, 0.02, 0.95,
		0.60, 0.10, 0.20,
		0.30, 0.50, 0.10,
	}

	maxes, classes, err := MaxScores(rawScores, 5, 3)
	require.NoError(t, err)

	keep, err := NonMaxSuppression(boxes, maxes, NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5, ScoreThreshold: 0.9})
	require.NoError(t, err)
	require.Equal(t, []int{2}, keep)

	detections := Assemble(keep, boxes, maxes, classes, 640, 480)
	require.Len(t, detections, 1)
	assert.Equal(t, 2, detections[0].ClassID)
	assert.Equal(t, float32(0.95), detections[0].Score)

	// At the default threshold of 0.99 the same frame yields nothing.
	keep, err = NonMaxSuppression(boxes, maxes, NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5, ScoreThreshold: 0.99})
	require.NoError(t, err)
	assert.Empty(t, keep)
	assert.NotNil(t, Assemble(keep, boxes, maxes, classes, 640, 480))
}

func TestNonMaxSuppression_LengthMismatch(t *testing.T) {
	_, err := NonMaxSuppression([]images.Box{{0, 0, 1, 1}}, nil, NMSConfig{MaxNumBoxes: 1})
	assert.Error(t, err)
}

// TestNonMaxSuppression_Properties checks the output bounds on random inputs
// and that every backend agrees with the sequential one.
func TestNonMaxSuppression_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 200; iter++ {
		n := rng.Intn(60)
		boxes := make([]images.Box, n)
		scores := make([]float32, n)
		for i := range boxes {
			y, x := rng.Float32()*0.8, rng.Float32()*0.8
			boxes[i] = images.Box{y, x, y + rng.Float32()*0.3, x + rng.Float32()*0.3}
			scores[i] = rng.Float32()
		}
		cfg := NMSConfig{
			MaxNumBoxes:    1 + rng.Intn(20),
			IoUThreshold:   rng.Float32(),
			ScoreThreshold: rng.Float32() * 0.5,
		}

		keep, err := NonMaxSuppression(boxes, scores, cfg)
		require.NoError(t, err)

		assert.LessOrEqual(t, len(keep), cfg.MaxNumBoxes)
		seen := map[int]bool{}
		for a, i := range keep {
			require.True(t, i >= 0 && i < n, "index %d out of range", i)
			assert.False(t, seen[i], "index %d kept twice", i)
			seen[i] = true
			assert.GreaterOrEqual(t, scores[i], cfg.ScoreThreshold)
			if a > 0 {
				assert.GreaterOrEqual(t, scores[keep[a-1]], scores[i], "output must be ordered by score")
			}
			for _, j := range keep[:a] {
				assert.LessOrEqual(t, images.CalculateIoU(boxes[i], boxes[j]), cfg.IoUThreshold)
			}
		}

		cfg.Backend = Workers{N: 3}
		parallel, err := NonMaxSuppression(boxes, scores, cfg)
		require.NoError(t, err)
		assert.Equal(t, keep, parallel)
	}
}

func TestWorkersIoU(t *testing.T) {
	box := images.Box{0, 0, 1, 1}
	others := []images.Box{{0, 0, 1, 1}, {0, 0, 0.5, 0.5}, {2, 2, 3, 3}, {0, 0, 1, 0.5}, {0.5, 0, 1, 1}}

	want := make([]float32, len(others))
	CPU{}.IoU(box, others, want)

	for _, n := range []int{0, 1, 2, 3, 10} {
		got := make([]float32, len(others))
		Workers{N: n}.IoU(box, others, got)
		assert.Equal(t, want, got, "N=%d", n)
	}
}

func BenchmarkNonMaxSuppression(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	const n = 1917
	boxes := make([]images.Box, n)
	scores := make([]float32, n)
	for i := range boxes {
		y, x := rng.Float32()*0.8, rng.Float32()*0.8
		boxes[i] = images.Box{y, x, y + 0.2, x + 0.2}
		scores[i] = rng.Float32()
	}

	for _, backend := range []Backend{CPU{}, Workers{N: 4}} {
		b.Run(backend.Name(), func(b *testing.B) {
			cfg := NMSConfig{MaxNumBoxes: 20, IoUThreshold: 0.5, ScoreThreshold: 0.5, Backend: backend}
			for i := 0; i < b.N; i++ {
				_, _ = NonMaxSuppression(boxes, scores, cfg)
			}
		})
	}
}
