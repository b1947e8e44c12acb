package detect

// Label identifies the class of a detected object.  It is a closed set, the
// decoder validates model class indexes against its configured class table
// at the decode boundary so unknown classes never leak downstream.
type Label int

const (
	LabelPerson Label = iota
	LabelPhone
	LabelBook
	LabelPaper
	LabelLaptop
	LabelMonitor
)

// labelNames maps each Label to its display name
var labelNames = map[Label]string{
	LabelPerson:  "person",
	LabelPhone:   "phone",
	LabelBook:    "book",
	LabelPaper:   "paper",
	LabelLaptop:  "laptop",
	LabelMonitor: "monitor",
}

// String returns the display name of the label
func (l Label) String() string {
	if name, ok := labelNames[l]; ok {
		return name
	}

	return "unknown"
}

// Forbidden returns true if an object of this label is not allowed to be
// visible during an exam
func (l Label) Forbidden() bool {
	switch l {
	case LabelPhone, LabelBook, LabelPaper:
		return true
	}

	return false
}
