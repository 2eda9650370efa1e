package models

import "time"

// Intent kinds
const (
	IntentKindBook         = "book"
	IntentKindReschedule   = "reschedule"
	IntentKindCancel       = "cancel"
	IntentKindAvailability = "query_availability"
)

// Intent statuses. Transitions are forward-only:
// collecting -> ready -> resolved, or collecting/ready -> abandoned.
const (
	IntentStatusCollecting = "collecting"
	IntentStatusReady      = "ready"
	IntentStatusResolved   = "resolved"
	IntentStatusAbandoned  = "abandoned"
)

// Intent accumulates one in-progress scheduling goal across turns.
type Intent struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`

	ClassType  string `json:"class_type,omitempty"`
	When       string `json:"when,omitempty"` // raw natural-language expression
	Date       string `json:"date,omitempty"` // normalized YYYY-MM-DD
	Time       string `json:"time,omitempty"` // normalized HH:MM
	Instructor string `json:"instructor,omitempty"`

	ClientName  string `json:"client_name,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Notes       string `json:"notes,omitempty"`
	BookingID   string `json:"booking_id,omitempty"` // cancel/reschedule target

	Status          string `json:"status"`
	ClarifyAttempts int    `json:"clarify_attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IntentFragment is one inbound piece of structured intent, as produced by
// the language-understanding layer. Empty fields mean "not mentioned this
// turn"; non-empty fields overwrite earlier values (corrections).
type IntentFragment struct {
	Kind        string `json:"kind,omitempty"`
	ClassType   string `json:"class_type,omitempty"`
	When        string `json:"when,omitempty"`
	Instructor  string `json:"instructor,omitempty"`
	ClientName  string `json:"client_name,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Notes       string `json:"notes,omitempty"`
	BookingID   string `json:"booking_id,omitempty"`
	Abandon     bool   `json:"abandon,omitempty"` // client explicitly dropped the current request
}

// Merge applies the fragment's non-empty fields onto the intent.
func (i *Intent) Merge(frag IntentFragment) {
	if frag.ClassType != "" {
		i.ClassType = frag.ClassType
	}
	if frag.When != "" && frag.When != i.When {
		i.When = frag.When
		// A new expression invalidates any earlier normalization.
		i.Date = ""
		i.Time = ""
	}
	if frag.Instructor != "" {
		i.Instructor = frag.Instructor
	}
	if frag.ClientName != "" {
		i.ClientName = frag.ClientName
	}
	if frag.ClientPhone != "" {
		i.ClientPhone = frag.ClientPhone
	}
	if frag.Notes != "" {
		i.Notes = frag.Notes
	}
	if frag.BookingID != "" {
		i.BookingID = frag.BookingID
	}
	i.UpdatedAt = time.Now()
}

// MissingFields lists the kind-specific required fields not yet collected.
func (i *Intent) MissingFields() []string {
	var missing []string
	switch i.Kind {
	case IntentKindBook:
		if i.ClassType == "" {
			missing = append(missing, "class type")
		}
		if i.When == "" {
			missing = append(missing, "date and time")
		}
		if i.ClientName == "" {
			missing = append(missing, "your name")
		}
		if i.ClientPhone == "" {
			missing = append(missing, "your phone number")
		}
	case IntentKindCancel:
		if i.BookingID == "" && (i.ClientPhone == "" || i.When == "") {
			missing = append(missing, "booking ID or the date and time of your booking")
		}
	case IntentKindReschedule:
		if i.BookingID == "" && (i.ClientPhone == "" || i.When == "") {
			missing = append(missing, "which booking to move")
		}
		if i.When == "" {
			missing = append(missing, "the new date and time")
		}
	case IntentKindAvailability:
		if i.When == "" {
			missing = append(missing, "date")
		}
	}
	return missing
}
