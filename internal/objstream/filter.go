package objstream

// Status is the verdict a Filter returns for a candidate record.
type Status int

const (
	// Undecided leaves the decision to the decoder, which accepts the record.
	Undecided Status = iota
	Allowed
	Rejected
)

func (s Status) String() string {
	switch s {
	case Allowed:
		return "ALLOWED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNDECIDED"
	}
}

// FilterInfo describes a record before any value is constructed from it.
// Class is empty for records that carry no class (null, string).
// StreamBytes is the number of bytes consumed up to and including the record.
type FilterInfo struct {
	Class       string
	Array       bool
	Depth       int
	StreamBytes int64
}

// Filter is consulted once per record before the decoder builds a value.
type Filter interface {
	CheckInput(info FilterInfo) Status
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(info FilterInfo) Status

func (f FilterFunc) CheckInput(info FilterInfo) Status { return f(info) }

// AllowExact returns a Filter that allows exactly one class name and rejects
// every other class, including arrays of the allowed class. Records without
// a class are left undecided.
func AllowExact(class string) Filter {
	return FilterFunc(func(info FilterInfo) Status {
		if info.Class == "" {
			return Undecided
		}
		if info.Class == class && !info.Array {
			return Allowed
		}
		return Rejected
	})
}
