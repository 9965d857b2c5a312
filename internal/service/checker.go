package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"deserlab/internal/clock"
	"deserlab/internal/model"
	"deserlab/internal/objstream"
)

// AssignmentName identifies the deserialization assignment in results and attempts.
const AssignmentName = "InsecureDeserializationTask"

// Outcome classifies how a token was judged.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeTimingRange    Outcome = "timing_out_of_range"
	OutcomeInvalidVersion Outcome = "invalid_version"
	OutcomeExpired        Outcome = "expired"
	OutcomeStringObject   Outcome = "string_object"
	OutcomeWrongObject    Outcome = "wrong_object"
)

// Verdict is the result of checking one token.
// Delay is only set when a TaskHolder was decoded and timed.
type Verdict struct {
	Result  model.AttackResult
	Outcome Outcome
	Delay   time.Duration
	Timed   bool
}

// TaskChecker decodes lesson tokens under a filter that only admits the
// TaskHolder class and judges the time the decoding took.
type TaskChecker struct {
	registry *objstream.Registry
	filter   objstream.Filter
	clock    clock.Clock
	minDelay time.Duration
	maxDelay time.Duration
	log      *zap.Logger
}

var tokenAlphabet = strings.NewReplacer("-", "+", "_", "/")

// DecodeToken decodes a base64 token in either alphabet. Trailing padding is
// optional; a padded token must be padded correctly.
func DecodeToken(token string) ([]byte, error) {
	s := tokenAlphabet.Replace(token)
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// NewTaskChecker builds a checker accepting decode times within [minDelay, maxDelay].
func NewTaskChecker(minDelay, maxDelay, taskMaxAge time.Duration, clk clock.Clock, log *zap.Logger) (*TaskChecker, error) {
	if minDelay < 0 || maxDelay < minDelay {
		return nil, fmt.Errorf("invalid delay window [%s, %s]", minDelay, maxDelay)
	}
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = zap.NewNop()
	}
	reg, err := objstream.NewRegistry(model.TaskHolderStreamClass(taskMaxAge, log))
	if err != nil {
		return nil, fmt.Errorf("register task holder: %w", err)
	}
	return &TaskChecker{
		registry: reg,
		filter:   objstream.AllowExact(model.TaskHolderClass),
		clock:    clk,
		minDelay: minDelay,
		maxDelay: maxDelay,
		log:      log,
	}, nil
}

// Check judges token. Every failure is reported through the verdict.
func (c *TaskChecker) Check(ctx context.Context, token string) Verdict {
	data, err := DecodeToken(token)
	if err != nil {
		// Graded as an incompatible stream; expired is kept for outdated tasks.
		c.log.Debug("token is not valid base64", zap.Error(err))
		return failed(OutcomeInvalidVersion, model.FeedbackInvalidVersion)
	}

	dec := objstream.NewDecoder(bytes.NewReader(data), c.registry,
		objstream.WithFilter(c.filter),
		objstream.WithClock(c.clock),
	)

	before := c.clock.Now()
	v, err := dec.ReadObject(ctx)
	if err != nil {
		if errors.Is(err, model.ErrIllegalArgument) {
			return failed(OutcomeExpired, model.FeedbackExpired)
		}
		c.log.Debug("token rejected while decoding", zap.Error(err))
		return failed(OutcomeInvalidVersion, model.FeedbackInvalidVersion)
	}

	if _, ok := v.(*model.TaskHolder); !ok {
		if _, ok := v.(string); ok {
			return failed(OutcomeStringObject, model.FeedbackStringObject)
		}
		return failed(OutcomeWrongObject, model.FeedbackWrongObject)
	}
	delay := c.clock.Now().Sub(before)

	// Compare whole milliseconds, a delay of 7000.4ms still passes.
	ms := delay.Milliseconds()
	if ms > c.maxDelay.Milliseconds() || ms < c.minDelay.Milliseconds() {
		return Verdict{
			Result: model.Failed(AssignmentName).
				Output(fmt.Sprintf("deserialization took %d ms, expected between %d and %d ms",
					ms, c.minDelay.Milliseconds(), c.maxDelay.Milliseconds())).
				Build(),
			Outcome: OutcomeTimingRange,
			Delay:   delay,
			Timed:   true,
		}
	}
	return Verdict{
		Result:  model.Success(AssignmentName).Build(),
		Outcome: OutcomeSuccess,
		Delay:   delay,
		Timed:   true,
	}
}

func failed(o Outcome, feedbackKey string) Verdict {
	return Verdict{
		Result:  model.Failed(AssignmentName).Feedback(feedbackKey).Build(),
		Outcome: o,
	}
}
