package model

// AttackResult is the verdict returned for a lesson assignment submission.
type AttackResult struct {
	LessonCompleted bool   `json:"lessonCompleted"`
	Feedback        string `json:"feedback"`
	FeedbackKey     string `json:"feedbackKey"`
	Output          string `json:"output,omitempty"`
	Assignment      string `json:"assignment"`
	AttemptWasMade  bool   `json:"attemptWasMade"`
}

// ResultBuilder assembles an AttackResult. Use Success or Failed to start one.
type ResultBuilder struct {
	assignment  string
	completed   bool
	feedbackKey string
	output      string
}

// Success starts a passing result for assignment.
func Success(assignment string) *ResultBuilder {
	return &ResultBuilder{assignment: assignment, completed: true}
}

// Failed starts a failing result for assignment.
func Failed(assignment string) *ResultBuilder {
	return &ResultBuilder{assignment: assignment}
}

// Feedback sets the feedback key. Without it the default solved/not solved key is used.
func (b *ResultBuilder) Feedback(key string) *ResultBuilder {
	b.feedbackKey = key
	return b
}

func (b *ResultBuilder) Output(output string) *ResultBuilder {
	b.output = output
	return b
}

func (b *ResultBuilder) Build() AttackResult {
	key := b.feedbackKey
	if key == "" {
		if b.completed {
			key = FeedbackSolved
		} else {
			key = FeedbackNotSolved
		}
	}
	return AttackResult{
		LessonCompleted: b.completed,
		Feedback:        Message(key),
		FeedbackKey:     key,
		Output:          b.output,
		Assignment:      b.assignment,
		AttemptWasMade:  true,
	}
}
