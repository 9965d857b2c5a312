package service

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"deserlab/internal/clock"
	"deserlab/internal/model"
	"deserlab/internal/objstream"
)

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

// stepClock advances by a fixed step on every Sleep, whatever was requested.
type stepClock struct {
	*clock.Fake
	step time.Duration
}

func (c stepClock) Sleep(ctx context.Context, _ time.Duration) error {
	return c.Fake.Sleep(ctx, c.step)
}

func newChecker(t testing.TB, clk clock.Clock) *TaskChecker {
	t.Helper()
	c, err := NewTaskChecker(3000*time.Millisecond, 7000*time.Millisecond, 10*time.Minute, clk, nil)
	require.NoError(t, err)
	return c
}

func tokenFor(t testing.TB, v any) string {
	t.Helper()
	data, err := objstream.Marshal(v)
	require.NoError(t, err)
	return base64.URLEncoding.EncodeToString(data)
}

func holder(action string) *model.TaskHolder {
	return model.NewTaskHolder("backup", action, testNow.Add(-time.Minute))
}

func TestTaskChecker_Check(t *testing.T) {
	tests := []struct {
		name        string
		token       func(t *testing.T) string
		wantOutcome Outcome
		wantKey     string
		wantSolved  bool
	}{
		{
			name:        "task holder decoded in 4000ms",
			token:       func(t *testing.T) string { return tokenFor(t, holder("sleep 4")) },
			wantOutcome: OutcomeSuccess,
			wantKey:     model.FeedbackSolved,
			wantSolved:  true,
		},
		{
			name:        "task holder decoded in 8000ms",
			token:       func(t *testing.T) string { return tokenFor(t, holder("sleep 8")) },
			wantOutcome: OutcomeTimingRange,
			wantKey:     model.FeedbackNotSolved,
		},
		{
			name:        "task holder decoded too fast",
			token:       func(t *testing.T) string { return tokenFor(t, holder("sleep 2")) },
			wantOutcome: OutcomeTimingRange,
			wantKey:     model.FeedbackNotSolved,
		},
		{
			name:        "lower bound is inclusive",
			token:       func(t *testing.T) string { return tokenFor(t, holder("sleep 3")) },
			wantOutcome: OutcomeSuccess,
			wantKey:     model.FeedbackSolved,
			wantSolved:  true,
		},
		{
			name:        "upper bound is inclusive",
			token:       func(t *testing.T) string { return tokenFor(t, holder("sleep 7")) },
			wantOutcome: OutcomeSuccess,
			wantKey:     model.FeedbackSolved,
			wantSolved:  true,
		},
		{
			name:        "standard base64 alphabet is accepted",
			token:       func(t *testing.T) string { return base64.StdEncoding.EncodeToString(mustMarshal(t, holder("sleep 5"))) },
			wantOutcome: OutcomeSuccess,
			wantKey:     model.FeedbackSolved,
			wantSolved:  true,
		},
		{
			name:        "plain string",
			token:       func(t *testing.T) string { return tokenFor(t, "sleep 5") },
			wantOutcome: OutcomeStringObject,
			wantKey:     model.FeedbackStringObject,
		},
		{
			name:        "null object",
			token:       func(t *testing.T) string { return tokenFor(t, nil) },
			wantOutcome: OutcomeWrongObject,
			wantKey:     model.FeedbackWrongObject,
		},
		{
			name: "old serial version",
			token: func(t *testing.T) string {
				return tokenFor(t, objstream.Raw{Class: model.TaskHolderClass, SerialVersion: 1, Value: *holder("sleep 5")})
			},
			wantOutcome: OutcomeInvalidVersion,
			wantKey:     model.FeedbackInvalidVersion,
		},
		{
			name: "subclass name is rejected",
			token: func(t *testing.T) string {
				return tokenFor(t, objstream.Raw{Class: model.TaskHolderClass + "Ext", SerialVersion: 2, Value: *holder("sleep 5")})
			},
			wantOutcome: OutcomeInvalidVersion,
			wantKey:     model.FeedbackInvalidVersion,
		},
		{
			name: "array of task holders is rejected",
			token: func(t *testing.T) string {
				return tokenFor(t, objstream.Raw{Class: model.TaskHolderClass, SerialVersion: 2, Array: true, Value: []model.TaskHolder{*holder("sleep 5")}})
			},
			wantOutcome: OutcomeInvalidVersion,
			wantKey:     model.FeedbackInvalidVersion,
		},
		{
			name: "truncated stream",
			token: func(t *testing.T) string {
				data := mustMarshal(t, holder("sleep 5"))
				return base64.URLEncoding.EncodeToString(data[:len(data)/2])
			},
			wantOutcome: OutcomeInvalidVersion,
			wantKey:     model.FeedbackInvalidVersion,
		},
		{
			name:        "unpadded url-safe token",
			token:       func(t *testing.T) string { return base64.RawURLEncoding.EncodeToString(unpaddedPayload(t)) },
			wantOutcome: OutcomeSuccess,
			wantKey:     model.FeedbackSolved,
			wantSolved:  true,
		},
		{
			name: "excess padding",
			token: func(t *testing.T) string {
				return base64.RawURLEncoding.EncodeToString(unpaddedPayload(t)) + "==="
			},
			wantOutcome: OutcomeInvalidVersion,
			wantKey:     model.FeedbackInvalidVersion,
		},
		{
			name:        "not base64 is graded as invalid version, not expired",
			token:       func(t *testing.T) string { return "%%%not-a-token%%%" },
			wantOutcome: OutcomeInvalidVersion,
			wantKey:     model.FeedbackInvalidVersion,
		},
		{
			name:        "empty token",
			token:       func(t *testing.T) string { return "" },
			wantOutcome: OutcomeInvalidVersion,
			wantKey:     model.FeedbackInvalidVersion,
		},
		{
			name: "valid token with trailing garbage is still decoded",
			token: func(t *testing.T) string {
				return base64.URLEncoding.EncodeToString(append(mustMarshal(t, holder("sleep 5")), 0xde, 0xad))
			},
			wantOutcome: OutcomeSuccess,
			wantKey:     model.FeedbackSolved,
			wantSolved:  true,
		},
		{
			name: "outdated execution time",
			token: func(t *testing.T) string {
				return tokenFor(t, model.NewTaskHolder("backup", "sleep 5", testNow.Add(-time.Hour)))
			},
			wantOutcome: OutcomeExpired,
			wantKey:     model.FeedbackExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChecker(t, clock.NewFake(testNow))

			v := c.Check(context.Background(), tt.token(t))

			assert.Equal(t, tt.wantOutcome, v.Outcome)
			assert.Equal(t, tt.wantKey, v.Result.FeedbackKey)
			assert.Equal(t, tt.wantSolved, v.Result.LessonCompleted)
			assert.Equal(t, AssignmentName, v.Result.Assignment)
		})
	}
}

func TestTaskChecker_TimingOutput(t *testing.T) {
	c := newChecker(t, clock.NewFake(testNow))

	v := c.Check(context.Background(), tokenFor(t, holder("sleep 8")))
	assert.Equal(t, "deserialization took 8000 ms, expected between 3000 and 7000 ms", v.Result.Output)

	v = c.Check(context.Background(), tokenFor(t, holder("sleep 5")))
	assert.Empty(t, v.Result.Output)
}

// unpaddedPayload returns a solving stream whose length is not a multiple of
// three, so its padded encoding ends in '='.
func unpaddedPayload(t *testing.T) []byte {
	t.Helper()
	for _, name := range []string{"backup", "backupX", "backupXX"} {
		data := mustMarshal(t, model.NewTaskHolder(name, "sleep 4", testNow.Add(-time.Minute)))
		if len(data)%3 != 0 {
			require.True(t, strings.HasSuffix(base64.URLEncoding.EncodeToString(data), "="))
			return data
		}
	}
	t.Fatal("no payload needing padding")
	return nil
}

func TestDecodeToken(t *testing.T) {
	data := unpaddedPayload(t)

	for name, token := range map[string]string{
		"std padded": base64.StdEncoding.EncodeToString(data),
		"url padded": base64.URLEncoding.EncodeToString(data),
		"std raw":    base64.RawStdEncoding.EncodeToString(data),
		"url raw":    base64.RawURLEncoding.EncodeToString(data),
	} {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeToken(token)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}

	_, err := DecodeToken("a")
	assert.Error(t, err)
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := objstream.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestTaskChecker_TimingWindow(t *testing.T) {
	token := tokenFor(t, holder("sleep 1"))

	rapid.Check(t, func(rt *rapid.T) {
		ms := rapid.IntRange(0, 20000).Draw(rt, "delay_ms")
		clk := stepClock{Fake: clock.NewFake(testNow), step: time.Duration(ms) * time.Millisecond}
		c := newChecker(t, clk)

		v := c.Check(context.Background(), token)

		want := ms >= 3000 && ms <= 7000
		if v.Result.LessonCompleted != want {
			rt.Fatalf("delay %dms: completed=%v, want %v", ms, v.Result.LessonCompleted, want)
		}
		if !v.Timed || v.Delay.Milliseconds() != int64(ms) {
			rt.Fatalf("delay %dms: verdict delay %s timed=%v", ms, v.Delay, v.Timed)
		}
	})
}

func TestTaskChecker_StringIgnoresTiming(t *testing.T) {
	token := tokenFor(t, "any text")

	rapid.Check(t, func(rt *rapid.T) {
		ms := rapid.IntRange(0, 20000).Draw(rt, "delay_ms")
		clk := stepClock{Fake: clock.NewFake(testNow), step: time.Duration(ms) * time.Millisecond}

		v := newChecker(t, clk).Check(context.Background(), token)
		if v.Outcome != OutcomeStringObject {
			rt.Fatalf("got outcome %s", v.Outcome)
		}
	})
}

func TestNewTaskChecker_InvalidWindow(t *testing.T) {
	_, err := NewTaskChecker(5*time.Second, time.Second, time.Minute, nil, nil)
	assert.Error(t, err)

	_, err = NewTaskChecker(-time.Second, time.Second, time.Minute, nil, nil)
	assert.Error(t, err)
}
