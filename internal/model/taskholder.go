package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"deserlab/internal/clock"
	"deserlab/internal/objstream"
)

const (
	// TaskHolderClass is the only class name the lesson accepts from a token.
	TaskHolderClass = "org.dummy.insecure.framework.VulnerableTaskHolder"
	// TaskHolderSerialVersion is the serial version local TaskHolders are written with.
	TaskHolderSerialVersion int64 = 2

	// DefaultTaskMaxAge is how far in the past a requested execution time may lie.
	DefaultTaskMaxAge = 10 * time.Minute

	maxActionLength = 22
	maxSleep        = time.Minute
)

var (
	// ErrIllegalArgument marks resolution failures caused by the task contents.
	ErrIllegalArgument = errors.New("illegal argument")
	ErrTaskOutdated    = fmt.Errorf("%w: outdated", ErrIllegalArgument)
)

// TaskHolder is the scheduled task a lesson token is expected to carry.
// Running its action is part of decoding, which is what the lesson times.
type TaskHolder struct {
	TaskName               string
	TaskAction             string
	RequestedExecutionTime time.Time

	maxAge time.Duration
	log    *zap.Logger
}

var (
	_ objstream.Serializable = (*TaskHolder)(nil)
	_ objstream.Resolver     = (*TaskHolder)(nil)
)

// NewTaskHolder returns a task requested for execution at at.
func NewTaskHolder(name, action string, at time.Time) *TaskHolder {
	return &TaskHolder{TaskName: name, TaskAction: action, RequestedExecutionTime: at}
}

func (*TaskHolder) StreamClass() (string, int64) {
	return TaskHolderClass, TaskHolderSerialVersion
}

// TaskHolderStreamClass registers TaskHolder with an objstream registry. Decoded
// holders log through log and reject execution times older than maxAge.
func TaskHolderStreamClass(maxAge time.Duration, log *zap.Logger) objstream.Class {
	if maxAge <= 0 {
		maxAge = DefaultTaskMaxAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	return objstream.Class{
		Name:          TaskHolderClass,
		SerialVersion: TaskHolderSerialVersion,
		New: func() any {
			return &TaskHolder{maxAge: maxAge, log: log}
		},
	}
}

// ResolveObject validates the requested execution time and runs the action.
// Only sleep and ping actions shorter than 22 characters run. Sleep blocks on
// clk; ping is logged and never touches the network.
func (t *TaskHolder) ResolveObject(ctx context.Context, clk clock.Clock) error {
	log := t.log
	if log == nil {
		log = zap.NewNop()
	}
	maxAge := t.maxAge
	if maxAge <= 0 {
		maxAge = DefaultTaskMaxAge
	}

	log.Info("restoring task",
		zap.String("task_name", t.TaskName),
		zap.String("task_action", t.TaskAction),
		zap.Time("requested_execution_time", t.RequestedExecutionTime),
	)

	if !t.RequestedExecutionTime.IsZero() {
		now := clk.Now()
		if t.RequestedExecutionTime.Before(now.Add(-maxAge)) || t.RequestedExecutionTime.After(now) {
			log.Info("task outdated", zap.String("task_name", t.TaskName))
			return ErrTaskOutdated
		}
	}

	if len(t.TaskAction) >= maxActionLength {
		log.Info("task action too long, ignored", zap.Int("length", len(t.TaskAction)))
		return nil
	}

	switch {
	case strings.HasPrefix(t.TaskAction, "sleep"):
		d, ok := parseSleep(t.TaskAction)
		if !ok {
			log.Info("sleep action without a valid duration, ignored", zap.String("task_action", t.TaskAction))
			return nil
		}
		log.Info("executing sleep", zap.Duration("duration", d))
		return clk.Sleep(ctx, d)
	case strings.HasPrefix(t.TaskAction, "ping"):
		log.Info("ping action accepted, not executed", zap.String("task_action", t.TaskAction))
		return nil
	default:
		log.Info("unsupported task action ignored", zap.String("task_action", t.TaskAction))
		return nil
	}
}

// parseSleep reads "sleep <seconds>"; fractional seconds are allowed and the
// result is capped at maxSleep.
func parseSleep(action string) (time.Duration, bool) {
	fields := strings.Fields(action)
	if len(fields) != 2 || fields[0] != "sleep" {
		return 0, false
	}
	secs, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || secs < 0 || math.IsNaN(secs) {
		return 0, false
	}
	if secs >= maxSleep.Seconds() {
		return maxSleep, true
	}
	return time.Duration(secs * float64(time.Second)), true
}

func (t *TaskHolder) String() string {
	return fmt.Sprintf("TaskHolder[name=%s, action=%s, requestedExecutionTime=%s]",
		t.TaskName, t.TaskAction, t.RequestedExecutionTime.Format(time.RFC3339))
}
