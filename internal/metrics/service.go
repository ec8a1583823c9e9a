package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AngelCh415/prospection-kpi/internal/filter"
	"github.com/AngelCh415/prospection-kpi/internal/ingest"
	"github.com/AngelCh415/prospection-kpi/internal/models"
	"github.com/AngelCh415/prospection-kpi/internal/offers"
	"github.com/AngelCh415/prospection-kpi/internal/store"
	"github.com/AngelCh415/prospection-kpi/internal/validation"
)

// Query is the transport form of a filter configuration plus optional
// mission context. Every field is optional.
type Query struct {
	From          string   `query:"from" validate:"omitempty,date"`
	To            string   `query:"to" validate:"omitempty,date,notbefore=From"`
	Campaigns     []string `query:"campaign" validate:"dive,max=256"`
	Titles        []string `query:"title" validate:"dive,max=256"`
	TitleMatch    string   `query:"title_match" validate:"omitempty,oneof=exact contains"`
	Sectors       []string `query:"sector" validate:"dive,max=256"`
	Sizes         []string `query:"size" validate:"dive,max=64"`
	Locations     []string `query:"location" validate:"dive,max=256"`
	LocationMatch string   `query:"location_match" validate:"omitempty,oneof=exact contains"`

	Client       string   `query:"client" validate:"max=200"`
	Offer        string   `query:"offer" validate:"max=100"`
	CustomTarget string   `query:"contacts_target" validate:"omitempty,number,max=9"`
	Channels     []string `query:"channel"`
	ReportType   string   `query:"report_type" validate:"omitempty,oneof=weekly monthly"`
	Cycle        string   `query:"cycle" validate:"max=100"`
}

// ParseQuery reads a Query from URL values. Multi-valued dimensions are
// given as repeated parameters (?campaign=A&campaign=B).
func ParseQuery(v url.Values) Query {
	return Query{
		From:          strings.TrimSpace(v.Get("from")),
		To:            strings.TrimSpace(v.Get("to")),
		Campaigns:     v["campaign"],
		Titles:        v["title"],
		TitleMatch:    norm(v.Get("title_match")),
		Sectors:       v["sector"],
		Sizes:         v["size"],
		Locations:     v["location"],
		LocationMatch: norm(v.Get("location_match")),
		Client:        strings.TrimSpace(v.Get("client")),
		Offer:         strings.TrimSpace(v.Get("offer")),
		CustomTarget:  strings.TrimSpace(v.Get("contacts_target")),
		Channels:      v["channel"],
		ReportType:    norm(v.Get("report_type")),
		Cycle:         strings.TrimSpace(v.Get("cycle")),
	}
}

// Criteria converts a validated query. Dates are whole UTC days.
func (q Query) Criteria() (filter.Criteria, error) {
	c := filter.Criteria{
		Campaigns: q.Campaigns,
		Titles:    filter.TextFilter{Values: q.Titles, Mode: filter.ParseMatchMode(q.TitleMatch)},
		Sectors:   q.Sectors,
		Sizes:     q.Sizes,
		Locations: filter.TextFilter{Values: q.Locations, Mode: filter.ParseMatchMode(q.LocationMatch)},
	}
	if q.From != "" {
		t, err := time.Parse("2006-01-02", q.From)
		if err != nil {
			return c, fmt.Errorf("from: %w", err)
		}
		c.Start = &t
	}
	if q.To != "" {
		t, err := time.Parse("2006-01-02", q.To)
		if err != nil {
			return c, fmt.Errorf("to: %w", err)
		}
		c.End = &t
	}
	return c, nil
}

// Target is the custom contacts target, 0 when unset.
func (q Query) Target() (int, error) {
	if q.CustomTarget == "" {
		return 0, nil
	}
	return strconv.Atoi(q.CustomTarget)
}

func (q Query) hasContext() bool {
	return q.Client != "" || q.Offer != "" || q.ReportType != "" || q.Cycle != "" || len(q.Channels) > 0
}

// QueryError is a rejected filter configuration.
type QueryError struct {
	Details map[string]string
}

func (e *QueryError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for k, v := range e.Details {
		parts = append(parts, k+": "+v)
	}
	return "invalid query: " + strings.Join(parts, "; ")
}

var ErrRemoteIngestDisabled = errors.New("remote ingestion not configured")

type Deps struct {
	Store     *store.MemoryStore
	Engine    *Engine
	Fetcher   *ingest.Fetcher
	Sink      *ingest.Sink
	Offers    *offers.Catalog
	Validator *validation.Validator
	Log       *slog.Logger
	Registry  prometheus.Registerer
}

// Service is the entry point used by transports: ingest, filter, compute.
type Service struct {
	st      *store.MemoryStore
	eng     *Engine
	fetcher *ingest.Fetcher
	sink    *ingest.Sink
	offers  *offers.Catalog
	v       *validation.Validator
	log     *slog.Logger
	ins     *instruments
}

func NewService(d Deps) *Service {
	if d.Engine == nil {
		d.Engine = NewEngine()
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	return &Service{
		st:      d.Store,
		eng:     d.Engine,
		fetcher: d.Fetcher,
		sink:    d.Sink,
		offers:  d.Offers,
		v:       d.Validator,
		log:     d.Log,
		ins:     newInstruments(d.Registry),
	}
}

// Ingest parses an export and stores it. Schema errors are returned as is.
func (s *Service) Ingest(name string, r io.Reader) (store.Dataset, error) {
	table, stats, err := ingest.ParseCSV(r)
	return s.keep(name, table, stats, err)
}

// IngestURL downloads and stores an export.
func (s *Service) IngestURL(ctx context.Context, u string) (store.Dataset, error) {
	if s.fetcher == nil {
		return store.Dataset{}, ErrRemoteIngestDisabled
	}
	table, stats, err := s.fetcher.FetchCSV(ctx, u)
	return s.keep(u, table, stats, err)
}

func (s *Service) keep(name string, table models.Table, stats ingest.ParseStats, err error) (store.Dataset, error) {
	if err != nil {
		var se *ingest.SchemaError
		if errors.As(err, &se) {
			s.ins.schemaErrors.Inc()
			s.log.Warn("ingest rejected", slog.String("name", name), slog.Any("missing", se.Missing))
		}
		return store.Dataset{}, err
	}
	d := s.st.Put(store.Dataset{
		Name:    name,
		Table:   table,
		Skipped: stats.Skipped,
		Columns: stats.Columns,
	})
	s.ins.ingested.Inc()
	s.ins.skipped.Add(float64(stats.Skipped))
	s.log.Info("ingest complete",
		slog.String("dataset", d.ID),
		slog.Int("contacts", d.Contacts),
		slog.Int("skipped_rows", stats.Skipped))
	return d, nil
}

func (s *Service) Dataset(id string) (store.Dataset, error) { return s.st.Get(id) }

func (s *Service) Datasets() []store.Dataset { return s.st.List() }

func (s *Service) Delete(id string) error { return s.st.Delete(id) }

// Facets lists the selectable values of each segmentation dimension.
func (s *Service) Facets(id string) (map[string][]string, error) {
	d, err := s.st.Get(id)
	if err != nil {
		return nil, err
	}
	return filter.Facets(d.Table), nil
}

// Report filters the dataset and computes its KPIs.
func (s *Service) Report(id string, q Query) (models.Report, error) {
	if err := s.v.Struct(q); err != nil {
		return models.Report{}, &QueryError{Details: s.v.Details(err)}
	}
	crit, err := q.Criteria()
	if err != nil {
		return models.Report{}, &QueryError{Details: map[string]string{"date": err.Error()}}
	}
	d, err := s.st.Get(id)
	if err != nil {
		return models.Report{}, err
	}

	report := s.eng.Compute(filter.Apply(d.Table, crit))

	if q.hasContext() && s.offers != nil {
		target, err := q.Target()
		if err != nil {
			return models.Report{}, &QueryError{Details: map[string]string{"contacts_target": "number"}}
		}
		ctx, err := s.offers.Context(offers.ContextRequest{
			Client:       q.Client,
			Offer:        q.Offer,
			CustomTarget: target,
			Channels:     q.Channels,
			ReportType:   q.ReportType,
			Cycle:        q.Cycle,
		})
		if err != nil {
			return models.Report{}, &QueryError{Details: map[string]string{"offer": err.Error()}}
		}
		report.Context = ctx
	}

	s.ins.reports.Inc()
	s.ins.filtered.Observe(float64(report.Contacts))
	return report, nil
}

// Export computes the report and pushes it to the configured sink.
func (s *Service) Export(ctx context.Context, id string, q Query) (int, error) {
	if s.sink == nil || !s.sink.Configured() {
		return 0, ingest.ErrSinkNotConfigured
	}
	report, err := s.Report(id, q)
	if err != nil {
		return 0, err
	}
	n, err := s.sink.Export(ctx, report)
	if err != nil {
		s.ins.exportErrors.Inc()
		return 0, err
	}
	s.log.Info("report exported", slog.String("dataset", id), slog.Int("contacts", n))
	return n, nil
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
