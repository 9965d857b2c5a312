package model

// Feedback keys. Each one maps to the text shown to the learner.
const (
	FeedbackSolved    = "assignment.solved"
	FeedbackNotSolved = "assignment.not.solved"

	FeedbackInvalidVersion = "insecure-deserialization.invalidversion"
	FeedbackExpired        = "insecure-deserialization.expired"
	FeedbackStringObject   = "insecure-deserialization.stringobject"
	FeedbackWrongObject    = "insecure-deserialization.wrongobject"
)

var messages = map[string]string{
	FeedbackSolved:         "Congratulations. You have successfully completed the assignment.",
	FeedbackNotSolved:      "Sorry the solution is not correct, please try again.",
	FeedbackInvalidVersion: "The serialization id does not match. Probably the version has been updated. Let's try again.",
	FeedbackExpired:        "The task is not executable between now and the next ten minutes, so the action will be ignored. Maybe you copied an old solution? Let's try again.",
	FeedbackStringObject:   "A string is not an object of the expected class. Try to serialize a task holder instead.",
	FeedbackWrongObject:    "The serialized object is not of the expected class. Please check the class you are sending.",
}

// Message returns the text for key, or key itself when no text is known.
func Message(key string) string {
	if m, ok := messages[key]; ok {
		return m
	}
	return key
}
