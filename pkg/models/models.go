// Package models defines data structures shared across the application.
package models

// Ticket represents one Trac ticket row. It is the source of truth for the
// ticket's final field values and is never mutated during migration.
type Ticket struct {
	// ID is the Trac ticket number. Ticket ids are unique and monotonic in
	// creation order, which is what makes number-preserving migration possible.
	ID int64

	// Summary is the ticket's one-line title.
	Summary string

	// Description is the full ticket body in Trac wiki markup.
	Description string

	// Reporter is the Trac handle of the ticket's author.
	Reporter string

	Status     string
	Resolution string
	Priority   string
	Component  string
	Type       string
	Severity   string
	Version    string
	Keywords   string
	Owner      string

	// CreatedAt and ChangedAt are microsecond epoch timestamps.
	CreatedAt int64
	ChangedAt int64
}

// ChangeEvent is one recorded field mutation on a ticket, as stored in Trac's
// ticket_change table.
type ChangeEvent struct {
	TicketID int64
	Field    string
	OldValue string
	NewValue string
	Author   string

	// Time is a microsecond epoch timestamp.
	Time int64
}

// AttachmentEvent is one file upload on a ticket.
type AttachmentEvent struct {
	TicketID    int64
	Filename    string
	Description string
	Size        int64
	Author      string

	// Time is a microsecond epoch timestamp.
	Time int64
}

// EventKind classifies a merged event. The set is closed: every event a
// ticket's history can produce is one of these.
type EventKind int

const (
	// EventInitial is the synthesized created-the-issue event.
	EventInitial EventKind = iota
	// EventFieldChange is a structured field transition (status, owner, ...).
	EventFieldChange
	// EventComment is a user comment.
	EventComment
	// EventAttachment is a file upload.
	EventAttachment
	// EventDescription is an edit of the ticket description.
	EventDescription
	// EventIgnored is a change that produces no output (keywords, cc, ...).
	EventIgnored
)

// MergedEvent is a normalized, renderable unit derived from a change or
// attachment event. Events with an empty Text render nothing.
type MergedEvent struct {
	Kind EventKind

	// Text is the rendered markdown body, empty for ignored events.
	Text string

	// Time is a microsecond epoch timestamp.
	Time int64
}

// ComposedIssue is the fully assembled GitHub import payload for one ticket.
// In single-post mode Comments is empty and the whole history lives in Body.
type ComposedIssue struct {
	Title  string
	Body   string
	Labels []string
	Closed bool

	// ISO-8601 UTC instants with second precision. UpdatedAt and ClosedAt are
	// empty when unknown.
	CreatedAt string
	UpdatedAt string
	ClosedAt  string

	// Comments holds one rendered body per merged event, in timestamp order.
	Comments []Comment
}

// Comment is one issue comment in the import payload.
type Comment struct {
	CreatedAt string
	Body      string
}
