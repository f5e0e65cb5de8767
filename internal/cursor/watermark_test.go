package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Normalizes(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, loc)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"int", 5, int64(5)},
		{"int32", int32(5), int64(5)},
		{"uint8", uint8(5), int64(5)},
		{"float32", float32(1.5), float64(1.5)},
		{"bytes", []byte("abc"), "abc"},
		{"time to utc", ts, ts.UTC()},
		{"string", "x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.in).Value())
		})
	}
}

func TestNew_Idempotent(t *testing.T) {
	wm := New(int64(3))
	assert.Equal(t, wm, New(wm))
}

func TestParseLiteral(t *testing.T) {
	assert.Equal(t, time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), ParseLiteral("1980-01-01").Value())
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), ParseLiteral("2024-05-06T07:08:09Z").Value())
	assert.Equal(t, time.Date(2024, 5, 6, 5, 8, 9, 0, time.UTC), ParseLiteral("2024-05-06 07:08:09+02:00").Value())
	assert.Equal(t, int64(42), ParseLiteral(" 42 ").Value())
	assert.Equal(t, "v1.2", ParseLiteral("v1.2").Value())
}

func TestCompare(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)

	tests := []struct {
		name string
		a, b Watermark
		want int
	}{
		{"times less", New(t1), New(t2), -1},
		{"times equal", New(t1), New(t1.In(time.FixedZone("Y", 7200))), 0},
		{"times greater", New(t2), New(t1), 1},
		{"ints", New(1), New(2), -1},
		{"int float", New(2), New(1.5), 1},
		{"large ints exact", New(int64(1<<62 + 1)), New(int64(1 << 62)), 1},
		{"strings", New("a"), New("b"), -1},
		{"string vs time", New("2024-01-01 00:00:01+00:00"), New(t1), 1},
		{"time vs string", New(t1), New("2024-01-01T00:00:00Z"), 0},
		{"zero vs value", Watermark{}, New(1), -1},
		{"value vs zero", New(1), Watermark{}, 1},
		{"zero vs zero", Watermark{}, Watermark{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.a.Compare(tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare_Incomparable(t *testing.T) {
	tests := []struct {
		name string
		a, b Watermark
	}{
		{"int vs time", New(1), New(time.Now())},
		{"time vs int", New(time.Now()), New(1)},
		{"int vs string", New(1), New("x")},
		{"non-time string vs time", New("soon"), New(time.Now())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.a.Compare(tt.b)
			assert.ErrorIs(t, err, ErrIncomparable)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "<none>", Watermark{}.String())
	assert.Equal(t, "2024-01-01T00:00:00Z", New(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)).String())
	assert.Equal(t, "7", New(7).String())
	assert.Equal(t, "abc", New("abc").String())
}
