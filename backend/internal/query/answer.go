package query

// AnswerKind discriminates the shape of an answer.
type AnswerKind int

const (
	// KindNone is a well-formed question that matched nothing.
	KindNone AnswerKind = iota
	// KindBool is a yes/no answer.
	KindBool
	// KindNames is a sorted, deduplicated list of concept names.
	KindNames
	// KindCount is a numeric answer.
	KindCount
)

// Answer is the result of one query: a boolean, a list of concept
// names, a count, or nothing.
type Answer struct {
	Kind  AnswerKind
	Bool  bool
	Names []string
	Count *int
}

func yesNo(v bool) *Answer {
	return &Answer{Kind: KindBool, Bool: v}
}

func nameList(names []string) *Answer {
	return &Answer{Kind: KindNames, Names: names}
}

func countOf(n *int) *Answer {
	if n == nil {
		return &Answer{Kind: KindNone}
	}
	return &Answer{Kind: KindCount, Count: n}
}

// IsEmpty reports whether the answer carries no information. An empty
// answer is a legitimate result, not an error.
func (a *Answer) IsEmpty() bool {
	switch a.Kind {
	case KindNone:
		return true
	case KindNames:
		return len(a.Names) == 0
	case KindCount:
		return a.Count == nil
	default:
		return false
	}
}

// Value renders the answer for serialization: "yes"/"no" for booleans,
// the name list, the count, or nil when empty.
func (a *Answer) Value() interface{} {
	switch a.Kind {
	case KindBool:
		if a.Bool {
			return "yes"
		}
		return "no"
	case KindNames:
		if len(a.Names) == 0 {
			return nil
		}
		return a.Names
	case KindCount:
		if a.Count == nil {
			return nil
		}
		return *a.Count
	default:
		return nil
	}
}
