//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package domain

// Urgency ranks an issue by how close its due date is; lower sorts first
// ENUM(overdue, due_today, due_soon, none)
type Urgency int

// Status is the workflow state carried by a "status:" label
// ENUM(todo, in_progress, done)
type Status string

// State is the tracker lifecycle state of an issue
// ENUM(open, closed)
type State string
