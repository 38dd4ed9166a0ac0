package domain

// Enrollment is the subset of an enrollment needed to bill for it.
type Enrollment struct {
	ID          int64
	StudentName string
	ParentName  string
	ParentEmail string
	ParentPhone string
}
