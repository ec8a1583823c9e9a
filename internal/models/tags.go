package models

import (
	"regexp"
	"strings"
)

// CallTag is the outcome label the dialer puts on the last call.
type CallTag uint8

const (
	TagNone CallTag = iota
	TagMeeting
	TagPitch
	TagSansSuite
	TagStandard
	TagNoAnswer
	TagWrongNumber
	TagUnknown

	numCallTags
)

// NumCallTags is the size of the tag vocabulary, none and unknown included.
const NumCallTags = int(numCallTags)

var callTagLabels = [numCallTags]string{
	TagNone:        "none",
	TagMeeting:     "Meeting",
	TagPitch:       "Pitch",
	TagSansSuite:   "Sans Suite",
	TagStandard:    "Standard",
	TagNoAnswer:    "No answer",
	TagWrongNumber: "Numéro Faux",
	TagUnknown:     "unknown",
}

// rank orders recognised tags by funnel depth; a cell carrying several tags
// resolves to the highest one.
var callTagRank = [numCallTags]int{
	TagMeeting:     6,
	TagPitch:       5,
	TagSansSuite:   4,
	TagStandard:    3,
	TagNoAnswer:    2,
	TagWrongNumber: 1,
}

var callTagByLabel = func() map[string]CallTag {
	m := make(map[string]CallTag)
	for t := TagMeeting; t < TagUnknown; t++ {
		m[strings.ToLower(callTagLabels[t])] = t
	}
	m["numero faux"] = TagWrongNumber
	return m
}()

var tagSplit = regexp.MustCompile(`[;,|]+`)

// ParseCallTag resolves a raw tag cell. Empty cells are TagNone; cells with no
// recognised tag are TagUnknown.
func ParseCallTag(raw string) CallTag {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TagNone
	}
	best := TagUnknown
	for _, p := range tagSplit.Split(raw, -1) {
		t, ok := callTagByLabel[strings.ToLower(strings.TrimSpace(p))]
		if !ok {
			continue
		}
		if best == TagUnknown || callTagRank[t] > callTagRank[best] {
			best = t
		}
	}
	return best
}

func (t CallTag) String() string {
	if t >= numCallTags {
		return callTagLabels[TagUnknown]
	}
	return callTagLabels[t]
}

// MarshalText lets CallTag be used as a JSON object key.
func (t CallTag) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText accepts the labels produced by String, then falls back to ParseCallTag.
func (t *CallTag) UnmarshalText(b []byte) error {
	s := string(b)
	for i, label := range callTagLabels {
		if label == s {
			*t = CallTag(i)
			return nil
		}
	}
	*t = ParseCallTag(s)
	return nil
}

// Connected reports whether the tag means a decision maker was reached.
func (t CallTag) Connected() bool {
	switch t {
	case TagMeeting, TagPitch, TagSansSuite, TagStandard:
		return true
	}
	return false
}

// Pitched reports whether the offer was presented during the call.
func (t CallTag) Pitched() bool { return t == TagMeeting || t == TagPitch }

// EmailStatus is the lead status reported by the email automation tool.
type EmailStatus uint8

const (
	StatusNone EmailStatus = iota
	StatusSent
	StatusOpened
	StatusClicked
	StatusReplied
	StatusBounced
	StatusUnsubscribed
	StatusInterested
	StatusNotInterested
	StatusUnknown

	numEmailStatuses
)

var emailStatusLabels = [numEmailStatuses]string{
	StatusNone:          "none",
	StatusSent:          "Email sent",
	StatusOpened:        "Email opened",
	StatusClicked:       "Email clicked",
	StatusReplied:       "Email replied",
	StatusBounced:       "Email bounced",
	StatusUnsubscribed:  "Email unsubscribed",
	StatusInterested:    "Interested",
	StatusNotInterested: "Not interested",
	StatusUnknown:       "unknown",
}

var emailStatusByLabel = func() map[string]EmailStatus {
	m := make(map[string]EmailStatus)
	for s := StatusSent; s < StatusUnknown; s++ {
		m[strings.ToLower(emailStatusLabels[s])] = s
	}
	return m
}()

// ParseEmailStatus resolves a raw status cell. Any non-empty value is at least
// StatusUnknown, so it still counts as emailed.
func ParseEmailStatus(raw string) EmailStatus {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return StatusNone
	}
	if s, ok := emailStatusByLabel[raw]; ok {
		return s
	}
	return StatusUnknown
}

func (s EmailStatus) String() string {
	if s >= numEmailStatuses {
		return emailStatusLabels[StatusUnknown]
	}
	return emailStatusLabels[s]
}

func (s EmailStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PhaseMeetingBooked is the lifecycle phase set by the CRM once a meeting is
// booked with the right contact.
const PhaseMeetingBooked = "RDV - Bon contact"
