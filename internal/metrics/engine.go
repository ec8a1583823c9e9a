package metrics

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/prospection-kpi/internal/models"
)

// Denominator selects the base of global_conversion_rate.
type Denominator uint8

const (
	// DenominatorFilteredContacts divides by every contact in the filtered table.
	DenominatorFilteredContacts Denominator = iota
	// DenominatorReachedContacts divides by contacts called or emailed.
	DenominatorReachedContacts
	// DenominatorTotalCalls divides by contacts with a recorded call.
	DenominatorTotalCalls
)

// GlobalConversionDenominator is the base used unless configured otherwise.
// Pending product confirmation; see DESIGN.md.
const GlobalConversionDenominator = DenominatorFilteredContacts

var denominatorNames = map[Denominator]string{
	DenominatorFilteredContacts: "filtered_contacts",
	DenominatorReachedContacts:  "reached_contacts",
	DenominatorTotalCalls:       "total_calls",
}

func (d Denominator) String() string { return denominatorNames[d] }

// ParseDenominator accepts the names produced by String. "" maps to the default.
func ParseDenominator(s string) (Denominator, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return GlobalConversionDenominator, nil
	}
	for d, name := range denominatorNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown global conversion denominator %q", s)
}

// parallelThreshold is the table size under which chunking costs more than it saves.
const parallelThreshold = 4096

// Engine computes funnel KPIs. It holds configuration only; Compute is pure
// and safe to call from several goroutines.
type Engine struct {
	denominator Denominator
	workers     int
}

type Option func(*Engine)

func WithDenominator(d Denominator) Option { return func(e *Engine) { e.denominator = d } }

// WithWorkers enables chunked classification on large tables when n > 1.
func WithWorkers(n int) Option { return func(e *Engine) { e.workers = n } }

func NewEngine(opts ...Option) *Engine {
	e := &Engine{denominator: GlobalConversionDenominator, workers: 1}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Compute runs the default engine over table.
func Compute(table models.Table) models.Report { return NewEngine().Compute(table) }

// Compute classifies every contact and derives counts, rates and the call
// tag breakdown.
func (e *Engine) Compute(table models.Table) models.Report {
	t := e.tally(table)
	return t.report(e.denominator)
}

func (e *Engine) tally(table models.Table) tally {
	if e.workers <= 1 || len(table) < parallelThreshold {
		var t tally
		for _, c := range table {
			t.add(Classify(c))
		}
		return t
	}

	size := (len(table) + e.workers - 1) / e.workers
	parts := make([]tally, (len(table)+size-1)/size)
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := range parts {
		lo := i * size
		hi := min(lo+size, len(table))
		part := &parts[i]
		g.Go(func() error {
			for _, c := range table[lo:hi] {
				part.add(Classify(c))
			}
			return nil
		})
	}
	_ = g.Wait()

	var total tally
	for _, p := range parts {
		total.merge(p)
	}
	return total
}

// Classification is the set of funnel buckets a single contact falls into.
type Classification struct {
	Called       bool
	Connected    bool
	Pitched      bool
	PhoneMeeting bool
	Emailed      bool
	Opened       bool
	Replied      bool
	EmailMeeting bool
	Reached      bool
	Tag          models.CallTag
}

// Classify applies the funnel rules to one contact. A call tag only counts
// when a call was recorded, and a contact booked by phone is never also an
// email meeting.
func Classify(c models.Contact) Classification {
	var k Classification
	k.Tag = c.CallTag
	if int(k.Tag) >= models.NumCallTags {
		k.Tag = models.TagUnknown
	}

	k.Called = c.Called
	if k.Called {
		k.Connected = k.Tag.Connected()
		k.Pitched = k.Tag.Pitched()
		k.PhoneMeeting = k.Tag == models.TagMeeting
	}

	k.Emailed = c.EmailStatus != models.StatusNone
	k.Opened = c.EmailStatus == models.StatusOpened
	k.Replied = c.EmailStatus == models.StatusReplied
	k.EmailMeeting = k.Replied &&
		strings.TrimSpace(c.LeadPhase) == models.PhaseMeetingBooked &&
		!k.PhoneMeeting

	k.Reached = k.Called || k.Emailed
	return k
}

type tally struct {
	contacts      int
	reached       int
	called        int
	connected     int
	pitched       int
	phoneMeetings int
	emailed       int
	opened        int
	replied       int
	emailMeetings int
	tags          [models.NumCallTags]int
}

func (t *tally) add(k Classification) {
	t.contacts++
	t.reached += b2i(k.Reached)
	t.called += b2i(k.Called)
	t.connected += b2i(k.Connected)
	t.pitched += b2i(k.Pitched)
	t.phoneMeetings += b2i(k.PhoneMeeting)
	t.emailed += b2i(k.Emailed)
	t.opened += b2i(k.Opened)
	t.replied += b2i(k.Replied)
	t.emailMeetings += b2i(k.EmailMeeting)
	t.tags[k.Tag]++
}

func (t *tally) merge(o tally) {
	t.contacts += o.contacts
	t.reached += o.reached
	t.called += o.called
	t.connected += o.connected
	t.pitched += o.pitched
	t.phoneMeetings += o.phoneMeetings
	t.emailed += o.emailed
	t.opened += o.opened
	t.replied += o.replied
	t.emailMeetings += o.emailMeetings
	for i := range t.tags {
		t.tags[i] += o.tags[i]
	}
}

func (t tally) report(d Denominator) models.Report {
	meetings := t.phoneMeetings + t.emailMeetings

	var globalBase int
	switch d {
	case DenominatorReachedContacts:
		globalBase = t.reached
	case DenominatorTotalCalls:
		globalBase = t.called
	default:
		globalBase = t.contacts
	}

	m := models.Metrics{
		TotalContacts:   t.contacts,
		ReachedContacts: t.reached,
		TotalCalls:      t.called,
		ConnectedCalls:  t.connected,
		PitchedCalls:    t.pitched,
		PhoneMeetings:   t.phoneMeetings,
		EmailedContacts: t.emailed,
		OpenedEmails:    t.opened,
		RepliedEmails:   t.replied,
		EmailMeetings:   t.emailMeetings,
		TotalMeetings:   meetings,

		ConnectionRate:       models.RateOf(t.connected, t.called),
		PitchRate:            models.RateOf(t.pitched, t.called),
		PhoneMeetingRate:     models.RateOf(t.phoneMeetings, t.called),
		OpenRate:             models.RateOf(t.opened, t.emailed),
		ReplyRate:            models.RateOf(t.replied, t.emailed),
		EmailConversionRate:  models.RateOf(t.emailMeetings, t.emailed),
		GlobalConversionRate: models.RateOf(meetings, globalBase),
	}

	return models.Report{
		Contacts:    t.contacts,
		Metrics:     m,
		Breakdown:   t.breakdown(),
		Tags:        t.tagRows(),
		Denominator: d.String(),
	}
}

// breakdown keys every tag seen at least once; counts sum to the table size.
func (t tally) breakdown() map[models.CallTag]int {
	out := make(map[models.CallTag]int)
	for i, n := range t.tags {
		if n > 0 {
			out[models.CallTag(i)] = n
		}
	}
	return out
}

// tagRows is the chart-ready distribution: count desc, then label.
func (t tally) tagRows() []models.TagCount {
	rows := make([]models.TagCount, 0, len(t.tags))
	for i, n := range t.tags {
		if n == 0 {
			continue
		}
		rows = append(rows, models.TagCount{
			Tag:   models.CallTag(i),
			Count: n,
			Share: models.RateOf(n, t.contacts),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Tag.String() < rows[j].Tag.String()
	})
	return rows
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
