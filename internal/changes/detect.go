package changes

import (
	"strconv"

	"github.com/glpibot/glpibot/internal/glpi"
)

// DescriptionBudget is how many runes of the description are tracked and shown.
const DescriptionBudget = 100

// NotSpecified renders a value that the backend did not provide.
const NotSpecified = "not specified"

// Field names a tracked ticket field.
type Field string

const (
	FieldStatus      Field = "status"
	FieldUrgency     Field = "urgency"
	FieldImpact      Field = "impact"
	FieldType        Field = "type"
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldDeadline    Field = "deadline"
)

// Snapshot is the last observed state of a ticket. Zero codes and empty
// strings mean the backend did not provide the value.
type Snapshot struct {
	TicketID    int
	Title       string
	Description string // cleaned plain text
	Status      int
	Urgency     int
	Impact      int
	Type        int
	Deadline    string
	CommentIDs  map[int]struct{}
}

// FromTicket builds a snapshot from a fetched ticket and its full comment list.
func FromTicket(t glpi.Ticket, comments []glpi.Comment) Snapshot {
	ids := make(map[int]struct{}, len(comments))
	for _, c := range comments {
		ids[int(c.ID)] = struct{}{}
	}
	return Snapshot{
		TicketID:    int(t.ID),
		Title:       t.Name,
		Description: glpi.CleanContent(t.Content),
		Status:      int(t.Status),
		Urgency:     int(t.Urgency),
		Impact:      int(t.Impact),
		Type:        int(t.Type),
		Deadline:    t.TimeToResolve,
		CommentIDs:  ids,
	}
}

// Change is one field-level difference between two snapshots.
type Change struct {
	Field  Field
	Label  string
	Before string
	After  string
}

// ChangeSet lists differences in tracked-field order.
type ChangeSet []Change

// Get returns the change of field, if present.
func (cs ChangeSet) Get(f Field) (Change, bool) {
	for _, c := range cs {
		if c.Field == f {
			return c, true
		}
	}
	return Change{}, false
}

type fieldSpec struct {
	field  Field
	label  string
	raw    func(Snapshot) string // "" = not specified
	format func(Snapshot) string
}

var trackedFields = []fieldSpec{
	{FieldStatus, "Status", func(s Snapshot) string { return code(s.Status) }, func(s Snapshot) string { return StatusLabel(s.Status) }},
	{FieldUrgency, "Urgency", func(s Snapshot) string { return code(s.Urgency) }, func(s Snapshot) string { return UrgencyLabel(s.Urgency) }},
	{FieldImpact, "Impact", func(s Snapshot) string { return code(s.Impact) }, func(s Snapshot) string { return ImpactLabel(s.Impact) }},
	{FieldType, "Type", func(s Snapshot) string { return code(s.Type) }, func(s Snapshot) string { return TypeLabel(s.Type) }},
	{FieldTitle, "Title", func(s Snapshot) string { return s.Title }, func(s Snapshot) string { return s.Title }},
	{FieldDescription, "Description", func(s Snapshot) string { return prefix(s.Description, DescriptionBudget) }, func(s Snapshot) string { return Truncate(s.Description, DescriptionBudget) }},
	{FieldDeadline, "Deadline", func(s Snapshot) string { return s.Deadline }, func(s Snapshot) string { return s.Deadline }},
}

// Detect compares the tracked fields of prev and curr. Comments are not
// part of the comparison; see NewComments.
func Detect(prev, curr Snapshot) ChangeSet {
	var cs ChangeSet
	for _, f := range trackedFields {
		before, after := f.raw(prev), f.raw(curr)
		if before == after {
			continue
		}
		cs = append(cs, Change{
			Field:  f.field,
			Label:  f.label,
			Before: render(f, prev, before),
			After:  render(f, curr, after),
		})
	}
	return cs
}

func render(f fieldSpec, s Snapshot, raw string) string {
	if raw == "" {
		return NotSpecified
	}
	return f.format(s)
}

// NewComments returns the comments of curr whose id is not in prevIDs, in
// fetch order. A nil prevIDs means nothing was observed before, so every
// comment is new.
func NewComments(prevIDs map[int]struct{}, curr []glpi.Comment) []glpi.Comment {
	if prevIDs == nil {
		return curr
	}
	var out []glpi.Comment
	for _, c := range curr {
		if _, seen := prevIDs[int(c.ID)]; !seen {
			out = append(out, c)
		}
	}
	return out
}

// Truncate cuts s to max runes and appends "..." when anything was cut.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func prefix(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func code(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}
