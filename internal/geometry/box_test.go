package geometry

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquareWithMargin(t *testing.T) {
	margin := RatioOf(0.30)

	cases := []struct {
		name   string
		box    Box
		w, h   int
		min    int
		expect Box
	}{
		{
			name:   "centered face",
			box:    Box{100, 100, 200, 200},
			w:      1000,
			h:      1000,
			expect: Box{70, 70, 230, 230},
		},
		{
			name:   "top left corner slides right and down",
			box:    Box{0, 0, 100, 100},
			w:      1000,
			h:      800,
			expect: Box{0, 0, 160, 160},
		},
		{
			name:   "bottom right corner slides back inside",
			box:    Box{950, 700, 1000, 800},
			w:      1000,
			h:      800,
			expect: Box{840, 640, 1000, 800},
		},
		{
			name:   "min size wins over small box",
			box:    Box{500, 500, 510, 510},
			w:      1000,
			h:      1000,
			min:    64,
			expect: Box{473, 473, 537, 537},
		},
		{
			name:   "oversized box capped to shorter side",
			box:    Box{0, 0, 500, 500},
			w:      300,
			h:      200,
			expect: Box{0, 0, 200, 200},
		},
		{
			name:   "inverted corners are normalised",
			box:    Box{200, 200, 100, 100},
			w:      1000,
			h:      1000,
			expect: Box{70, 70, 230, 230},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SquareWithMargin(tc.box, tc.w, tc.h, margin, tc.min)
			assert.Equal(t, tc.expect, got)
		})
	}
}

func TestSquareWithMarginAlwaysSquareAndContained(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	margins := []Ratio{0, RatioOf(0.1), RatioOf(0.3), RatioOf(1.5)}

	for i := 0; i < 5000; i++ {
		w := 1 + rng.Intn(2000)
		h := 1 + rng.Intn(2000)
		b := Box{
			X1: rng.Intn(3*w) - w,
			Y1: rng.Intn(3*h) - h,
			X2: rng.Intn(3*w) - w,
			Y2: rng.Intn(3*h) - h,
		}
		m := margins[i%len(margins)]
		minSize := rng.Intn(300)

		got := SquareWithMargin(b, w, h, m, minSize)
		require.Truef(t, got.IsSquare(), "not square: %s for %s in %dx%d", got, b, w, h)
		require.Truef(t, got.Within(w, h), "escapes image: %s for %s in %dx%d", got, b, w, h)
		require.Falsef(t, got.Empty(), "empty square: %s for %s in %dx%d", got, b, w, h)

		again := SquareWithMargin(b, w, h, m, minSize)
		require.Equal(t, got, again)
	}
}

func TestSquareWithMarginDegenerateImage(t *testing.T) {
	assert.True(t, SquareWithMargin(Box{0, 0, 10, 10}, 0, 100, RatioOf(0.3), 0).Empty())
}

func TestClamp(t *testing.T) {
	got := Clamp(Box{-10, 20, 120, 300}, 100, 200)
	assert.Equal(t, Box{0, 20, 100, 200}, got)
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, -2, floorDiv(-3, 2))
	assert.Equal(t, 1, floorDiv(3, 2))
	assert.Equal(t, -1, floorDiv(-1, 2))
	assert.Equal(t, 0, floorDiv(0, 2))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, Ratio(3000), RatioOf(0.30))
	assert.Equal(t, 30, RatioOf(0.30).Of(100))
	assert.Equal(t, 16, RatioOf(0.55).Of(30))
}
