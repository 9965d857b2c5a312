package objstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"

	"deserlab/internal/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const widgetClass = "example.Widget"

type widget struct {
	Name  string
	Count int

	resolvedAt time.Time
}

func (*widget) StreamClass() (string, int64) { return widgetClass, 7 }

func (w *widget) ResolveObject(ctx context.Context, clk clock.Clock) error {
	if w.Name == "explode" {
		return errors.New("refusing to resolve")
	}
	if w.Count > 0 {
		if err := clk.Sleep(ctx, time.Duration(w.Count)*time.Second); err != nil {
			return err
		}
	}
	w.resolvedAt = clk.Now()
	return nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(Class{Name: widgetClass, SerialVersion: 7, New: func() any { return new(widget) }})
	require.NoError(t, err)
	return reg
}

func decode(t *testing.T, data []byte, opts ...Option) (any, error) {
	t.Helper()
	return NewDecoder(bytes.NewReader(data), newTestRegistry(t), opts...).ReadObject(context.Background())
}

func TestRoundTrip(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("object", func(t *testing.T) {
		fake := clock.NewFake(start)
		data, err := Marshal(&widget{Name: "gear", Count: 3})
		require.NoError(t, err)

		v, err := decode(t, data, WithFilter(AllowExact(widgetClass)), WithClock(fake))
		require.NoError(t, err)

		w, ok := v.(*widget)
		require.True(t, ok)
		assert.Equal(t, "gear", w.Name)
		assert.Equal(t, start.Add(3*time.Second), w.resolvedAt)
	})

	t.Run("string", func(t *testing.T) {
		data, err := Marshal("hello")
		require.NoError(t, err)

		v, err := decode(t, data, WithFilter(AllowExact(widgetClass)))
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	})

	t.Run("null", func(t *testing.T) {
		data, err := Marshal(nil)
		require.NoError(t, err)

		v, err := decode(t, data, WithFilter(AllowExact(widgetClass)))
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}

func TestDecodeErrors(t *testing.T) {
	valid, err := Marshal(&widget{Name: "gear"})
	require.NoError(t, err)

	tests := []struct {
		name        string
		data        func(t *testing.T) []byte
		wantClass   bool
		wantCorrupt bool
	}{
		{
			name:        "empty input",
			data:        func(t *testing.T) []byte { return nil },
			wantCorrupt: true,
		},
		{
			name:        "bad magic",
			data:        func(t *testing.T) []byte { return append([]byte("JAVA\x01"), valid[5:]...) },
			wantCorrupt: true,
		},
		{
			name: "unsupported stream version",
			data: func(t *testing.T) []byte {
				b := bytes.Clone(valid)
				b[4] = 9
				return b
			},
			wantCorrupt: true,
		},
		{
			name:        "truncated record",
			data:        func(t *testing.T) []byte { return valid[:len(valid)-4] },
			wantCorrupt: true,
		},
		{
			name: "serial version mismatch",
			data: func(t *testing.T) []byte {
				b, err := Marshal(Raw{Class: widgetClass, SerialVersion: 1, Value: widget{Name: "old"}})
				require.NoError(t, err)
				return b
			},
			wantClass: true,
		},
		{
			name: "unknown class",
			data: func(t *testing.T) []byte {
				b, err := Marshal(Raw{Class: "example.Unknown", SerialVersion: 7, Value: widget{}})
				require.NoError(t, err)
				return b
			},
			wantClass: true,
		},
		{
			name: "body missing",
			data: func(t *testing.T) []byte {
				b, err := Marshal(Raw{Class: widgetClass, SerialVersion: 7})
				require.NoError(t, err)
				return b
			},
			wantCorrupt: true,
		},
		{
			name: "body of another shape",
			data: func(t *testing.T) []byte {
				b, err := Marshal(Raw{Class: widgetClass, SerialVersion: 7, Value: []int{1, 2, 3}})
				require.NoError(t, err)
				return b
			},
			wantCorrupt: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.data(t))
			require.Error(t, err)

			var ice *InvalidClassError
			assert.Equal(t, tt.wantClass, errors.As(err, &ice), "invalid class error: %v", err)
			assert.Equal(t, tt.wantCorrupt, errors.Is(err, ErrStreamCorrupted), "corrupted error: %v", err)
		})
	}
}

func TestDecodeFilterRejects(t *testing.T) {
	t.Run("array of the allowed class", func(t *testing.T) {
		data, err := Marshal(Raw{Class: widgetClass, SerialVersion: 7, Array: true, Value: []widget{{Name: "a"}}})
		require.NoError(t, err)

		_, err = decode(t, data, WithFilter(AllowExact(widgetClass)))
		var ice *InvalidClassError
		require.ErrorAs(t, err, &ice)
		assert.Contains(t, ice.Reason, "REJECTED")
	})

	t.Run("registered class that is not allowed", func(t *testing.T) {
		data, err := Marshal(&widget{Name: "gear"})
		require.NoError(t, err)

		_, err = decode(t, data, WithFilter(AllowExact("example.Other")))
		var ice *InvalidClassError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, widgetClass, ice.Class)
	})

	t.Run("rejection happens before construction", func(t *testing.T) {
		data, err := Marshal(&widget{Name: "explode"})
		require.NoError(t, err)

		var seen FilterInfo
		f := FilterFunc(func(info FilterInfo) Status {
			seen = info
			return Rejected
		})
		_, err = decode(t, data, WithFilter(f))
		var ice *InvalidClassError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, widgetClass, seen.Class)
		assert.Equal(t, 1, seen.Depth)
		assert.Positive(t, seen.StreamBytes)
	})
}

func TestDecodeStreamBytesCountsConsumedInput(t *testing.T) {
	data, err := Marshal(&widget{Name: "gear"})
	require.NoError(t, err)
	input := append(append([]byte{}, data...), bytes.Repeat([]byte{0xde, 0xad}, 512)...)

	readers := map[string]func() io.Reader{
		"byte reader":  func() io.Reader { return bytes.NewReader(input) },
		"plain reader": func() io.Reader { return struct{ io.Reader }{bytes.NewReader(input)} },
	}
	for name, newReader := range readers {
		t.Run(name, func(t *testing.T) {
			var seen FilterInfo
			f := FilterFunc(func(info FilterInfo) Status {
				seen = info
				return Undecided
			})
			_, err := NewDecoder(newReader(), newTestRegistry(t), WithFilter(f)).ReadObject(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), seen.StreamBytes)
		})
	}
}

func TestDecodeResolverError(t *testing.T) {
	data, err := Marshal(&widget{Name: "explode"})
	require.NoError(t, err)

	_, err = decode(t, data)
	assert.EqualError(t, err, "refusing to resolve")
}

func TestAllowExact(t *testing.T) {
	f := AllowExact(widgetClass)

	assert.Equal(t, Allowed, f.CheckInput(FilterInfo{Class: widgetClass}))
	assert.Equal(t, Undecided, f.CheckInput(FilterInfo{}))
	assert.Equal(t, Rejected, f.CheckInput(FilterInfo{Class: widgetClass, Array: true}))
	assert.Equal(t, Rejected, f.CheckInput(FilterInfo{Class: widgetClass + "Subclass"}))

	rapid.Check(t, func(rt *rapid.T) {
		class := rapid.String().Draw(rt, "class")
		array := rapid.Bool().Draw(rt, "array")
		got := f.CheckInput(FilterInfo{Class: class, Array: array})

		switch {
		case class == "":
			if got != Undecided {
				rt.Fatalf("empty class: got %s", got)
			}
		case class == widgetClass && !array:
			if got != Allowed {
				rt.Fatalf("exact class: got %s", got)
			}
		default:
			if got != Rejected {
				rt.Fatalf("class %q array=%v: got %s", class, array, got)
			}
		}
	})
}

func TestRegistry(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.Register(Class{Name: widgetClass, New: func() any { return new(widget) }})
	assert.Error(t, err)

	assert.Error(t, reg.Register(Class{Name: "", New: func() any { return nil }}))
	assert.Error(t, reg.Register(Class{Name: "no.ctor"}))

	c, ok := reg.Lookup(widgetClass)
	require.True(t, ok)
	assert.Equal(t, int64(7), c.SerialVersion)
}

func TestInspect(t *testing.T) {
	data, err := Marshal(Raw{Class: "example.Unknown", SerialVersion: 3, Array: true, Value: []string{"x"}})
	require.NoError(t, err)

	info, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, TagObject, info.Tag)
	assert.Equal(t, "example.Unknown", info.Class)
	assert.True(t, info.Array)
	assert.Equal(t, int64(3), info.SerialVersion)
	assert.Positive(t, info.BodyLen)

	_, err = Inspect([]byte("nope"))
	assert.ErrorIs(t, err, ErrStreamCorrupted)
}

func TestMarshalUnsupported(t *testing.T) {
	_, err := Marshal(42)
	assert.Error(t, err)
}
