package utils

// Date handling constants
const (
	// DeadlineDateLayout is the canonical YYYY-MM-DD layout for tender deadlines
	DeadlineDateLayout = "2006-01-02"
)
