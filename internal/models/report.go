package models

// Metric names. The set is fixed; presentation looks values up by these keys.
const (
	MetricTotalContacts        = "total_contacts"
	MetricReachedContacts      = "reached_contacts"
	MetricTotalCalls           = "total_calls"
	MetricConnectedCalls       = "connected_calls"
	MetricPitchedCalls         = "pitched_calls"
	MetricPhoneMeetings        = "phone_meetings"
	MetricEmailedContacts      = "emailed_contacts"
	MetricOpenedEmails         = "opened_emails"
	MetricRepliedEmails        = "replied_emails"
	MetricEmailMeetings        = "email_meetings"
	MetricTotalMeetings        = "total_meetings"
	MetricConnectionRate       = "connection_rate"
	MetricPitchRate            = "pitch_rate"
	MetricPhoneMeetingRate     = "phone_meeting_rate"
	MetricOpenRate             = "open_rate"
	MetricReplyRate            = "reply_rate"
	MetricEmailConversionRate  = "email_conversion_rate"
	MetricGlobalConversionRate = "global_conversion_rate"
)

type Metrics struct {
	TotalContacts   int `json:"total_contacts"`
	ReachedContacts int `json:"reached_contacts"`

	TotalCalls     int `json:"total_calls"`
	ConnectedCalls int `json:"connected_calls"`
	PitchedCalls   int `json:"pitched_calls"`
	PhoneMeetings  int `json:"phone_meetings"`

	EmailedContacts int `json:"emailed_contacts"`
	OpenedEmails    int `json:"opened_emails"`
	RepliedEmails   int `json:"replied_emails"`
	EmailMeetings   int `json:"email_meetings"`

	TotalMeetings int `json:"total_meetings"`

	ConnectionRate       Rate `json:"connection_rate"`
	PitchRate            Rate `json:"pitch_rate"`
	PhoneMeetingRate     Rate `json:"phone_meeting_rate"`
	OpenRate             Rate `json:"open_rate"`
	ReplyRate            Rate `json:"reply_rate"`
	EmailConversionRate  Rate `json:"email_conversion_rate"`
	GlobalConversionRate Rate `json:"global_conversion_rate"`
}

// Values flattens the metrics into the named mapping. Undefined rates are NaN.
func (m Metrics) Values() map[string]float64 {
	return map[string]float64{
		MetricTotalContacts:        float64(m.TotalContacts),
		MetricReachedContacts:      float64(m.ReachedContacts),
		MetricTotalCalls:           float64(m.TotalCalls),
		MetricConnectedCalls:       float64(m.ConnectedCalls),
		MetricPitchedCalls:         float64(m.PitchedCalls),
		MetricPhoneMeetings:        float64(m.PhoneMeetings),
		MetricEmailedContacts:      float64(m.EmailedContacts),
		MetricOpenedEmails:         float64(m.OpenedEmails),
		MetricRepliedEmails:        float64(m.RepliedEmails),
		MetricEmailMeetings:        float64(m.EmailMeetings),
		MetricTotalMeetings:        float64(m.TotalMeetings),
		MetricConnectionRate:       m.ConnectionRate.Float(),
		MetricPitchRate:            m.PitchRate.Float(),
		MetricPhoneMeetingRate:     m.PhoneMeetingRate.Float(),
		MetricOpenRate:             m.OpenRate.Float(),
		MetricReplyRate:            m.ReplyRate.Float(),
		MetricEmailConversionRate:  m.EmailConversionRate.Float(),
		MetricGlobalConversionRate: m.GlobalConversionRate.Float(),
	}
}

// TagCount is one row of the call tag distribution.
type TagCount struct {
	Tag   CallTag `json:"tag"`
	Count int     `json:"count"`
	Share Rate    `json:"share"`
}

// Report is the full engine output for one filtered table.
type Report struct {
	Contacts    int             `json:"contacts"`
	Metrics     Metrics         `json:"metrics"`
	Breakdown   map[CallTag]int `json:"breakdown"`
	Tags        []TagCount      `json:"tags"`
	Denominator string          `json:"global_conversion_denominator"`
	Context     *ReportContext  `json:"context,omitempty"`
}

// ReportContext is descriptive mission metadata. It never changes the numbers.
type ReportContext struct {
	Client         string   `json:"client,omitempty"`
	Offer          string   `json:"offer,omitempty"`
	ContactsTarget int      `json:"contacts_target,omitempty"`
	Channels       []string `json:"channels,omitempty"`
	ReportType     string   `json:"report_type,omitempty"`
	Cycle          string   `json:"cycle,omitempty"`
}
