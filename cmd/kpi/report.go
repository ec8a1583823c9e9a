package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/AngelCh415/prospection-kpi/internal/ingest"
	"github.com/AngelCh415/prospection-kpi/internal/metrics"
	"github.com/AngelCh415/prospection-kpi/internal/models"
	"github.com/AngelCh415/prospection-kpi/internal/offers"
	"github.com/AngelCh415/prospection-kpi/internal/store"
	"github.com/AngelCh415/prospection-kpi/internal/utils"
)

type sourceFlags struct {
	file    string
	url     string
	timeout time.Duration
	retries int
}

func (s *sourceFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.file, "file", "f", "", "CSV export path, - for stdin")
	cmd.Flags().StringVar(&s.url, "url", "", "download the CSV export from this URL")
	cmd.Flags().DurationVar(&s.timeout, "timeout", 15*time.Second, "HTTP timeout for --url")
	cmd.Flags().IntVar(&s.retries, "retries", 2, "retries for --url")
}

// load reads the export named by the flags into the service's store.
func (s *sourceFlags) load(ctx context.Context, svc *metrics.Service) (store.Dataset, error) {
	switch {
	case s.url != "" && s.file != "":
		return store.Dataset{}, fmt.Errorf("--file and --url are exclusive")
	case s.url != "":
		return svc.IngestURL(ctx, s.url)
	case s.file == "" || s.file == "-":
		return svc.Ingest("stdin", os.Stdin)
	}
	f, err := os.Open(s.file)
	if err != nil {
		return store.Dataset{}, err
	}
	defer f.Close()
	return svc.Ingest(s.file, f)
}

func (s *sourceFlags) service(eng *metrics.Engine, cat *offers.Catalog) *metrics.Service {
	cl := ingest.NewHTTPClient(s.timeout)
	return metrics.NewService(metrics.Deps{
		Store:   store.NewMemoryStore(1),
		Engine:  eng,
		Fetcher: ingest.NewFetcher(cl, utils.NewBackoff(200*time.Millisecond, s.retries), logger),
		Offers:  cat,
		Log:     logger,
	})
}

var (
	reportSrc    sourceFlags
	reportQ      metrics.Query
	reportFormat string
	reportDenom  string
	reportWorker int
	offersFile   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Filter an export and print its KPIs",
	Long: `Filter an export and print its KPIs.

Segment flags may be repeated; values inside one dimension are OR-ed and
dimensions are AND-ed. Dates are inclusive YYYY-MM-DD days.`,
	Example: `  kpi report -f export.csv --campaign "Q1 SaaS" --sector saas --from 2025-03-01
  kpi report --url https://crm.example/export.csv --offer "Multi 4J" --client Acme --format text`,
	RunE: runReport,
}

func init() {
	reportSrc.bind(reportCmd)
	f := reportCmd.Flags()
	f.StringVar(&reportQ.From, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&reportQ.To, "to", "", "last day, YYYY-MM-DD")
	f.StringArrayVar(&reportQ.Campaigns, "campaign", nil, "campaign (repeatable)")
	f.StringArrayVar(&reportQ.Titles, "title", nil, "job title (repeatable)")
	f.StringVar(&reportQ.TitleMatch, "title-match", "exact", "exact or contains")
	f.StringArrayVar(&reportQ.Sectors, "sector", nil, "sector (repeatable)")
	f.StringArrayVar(&reportQ.Sizes, "size", nil, "company size bucket (repeatable)")
	f.StringArrayVar(&reportQ.Locations, "location", nil, "location (repeatable)")
	f.StringVar(&reportQ.LocationMatch, "location-match", "exact", "exact or contains")
	f.StringVar(&reportQ.Client, "client", "", "client name shown in the report header")
	f.StringVar(&reportQ.Offer, "offer", "", "offer from the catalogue")
	f.StringVar(&reportQ.CustomTarget, "contacts-target", "", "contacts target for the custom offer")
	f.StringArrayVar(&reportQ.Channels, "channel", nil, "channel override (repeatable)")
	f.StringVar(&reportQ.ReportType, "report-type", "", "weekly or monthly")
	f.StringVar(&reportQ.Cycle, "cycle", "", "cycle label")
	f.StringVar(&reportFormat, "format", "json", "json or text")
	f.StringVar(&reportDenom, "denominator", "", "global conversion denominator: filtered_contacts, reached_contacts or total_calls")
	f.IntVar(&reportWorker, "workers", 1, "classification workers for large exports")
	f.StringVar(&offersFile, "offers-file", "", "YAML offer catalogue, built-in when empty")
}

func runReport(cmd *cobra.Command, args []string) error {
	denom, err := metrics.ParseDenominator(reportDenom)
	if err != nil {
		return err
	}
	cat, err := offers.Load(offersFile)
	if err != nil {
		return err
	}
	svc := reportSrc.service(metrics.NewEngine(metrics.WithDenominator(denom), metrics.WithWorkers(reportWorker)), cat)

	ds, err := reportSrc.load(cmd.Context(), svc)
	if err != nil {
		return err
	}
	rep, err := svc.Report(ds.ID, reportQ)
	if err != nil {
		return err
	}

	switch reportFormat {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "text":
		return writeText(cmd.OutOrStdout(), rep)
	}
	return fmt.Errorf("unknown format %q", reportFormat)
}

// metricRows is the display order of the text report.
var metricRows = []string{
	models.MetricTotalContacts,
	models.MetricReachedContacts,
	models.MetricTotalCalls,
	models.MetricConnectedCalls,
	models.MetricPitchedCalls,
	models.MetricPhoneMeetings,
	models.MetricConnectionRate,
	models.MetricPitchRate,
	models.MetricPhoneMeetingRate,
	models.MetricEmailedContacts,
	models.MetricOpenedEmails,
	models.MetricRepliedEmails,
	models.MetricEmailMeetings,
	models.MetricOpenRate,
	models.MetricReplyRate,
	models.MetricEmailConversionRate,
	models.MetricTotalMeetings,
	models.MetricGlobalConversionRate,
}

func rateOf(m models.Metrics, name string) (models.Rate, bool) {
	switch name {
	case models.MetricConnectionRate:
		return m.ConnectionRate, true
	case models.MetricPitchRate:
		return m.PitchRate, true
	case models.MetricPhoneMeetingRate:
		return m.PhoneMeetingRate, true
	case models.MetricOpenRate:
		return m.OpenRate, true
	case models.MetricReplyRate:
		return m.ReplyRate, true
	case models.MetricEmailConversionRate:
		return m.EmailConversionRate, true
	case models.MetricGlobalConversionRate:
		return m.GlobalConversionRate, true
	}
	return models.Rate{}, false
}

func writeText(w io.Writer, rep models.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if c := rep.Context; c != nil {
		fmt.Fprintf(tw, "client\t%s\n", c.Client)
		fmt.Fprintf(tw, "offer\t%s\n", c.Offer)
		if c.ContactsTarget > 0 {
			fmt.Fprintf(tw, "contacts target\t%d\n", c.ContactsTarget)
		}
		if c.ReportType != "" {
			fmt.Fprintf(tw, "report\t%s %s\n", c.ReportType, c.Cycle)
		}
		fmt.Fprintln(tw)
	}

	values := rep.Metrics.Values()
	for _, name := range metricRows {
		if r, ok := rateOf(rep.Metrics, name); ok {
			fmt.Fprintf(tw, "%s\t%s\n", name, r.Percent())
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, strconv.Itoa(int(values[name])))
	}
	fmt.Fprintf(tw, "denominator\t%s\n", rep.Denominator)

	if len(rep.Tags) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "call tag\tcount\tshare")
		for _, t := range rep.Tags {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", t.Tag, t.Count, t.Share.Percent())
		}
	}
	return tw.Flush()
}

var facetsSrc sourceFlags

var facetsCmd = &cobra.Command{
	Use:   "facets",
	Short: "List the selectable values of each segmentation dimension",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := facetsSrc.service(metrics.NewEngine(), nil)
		ds, err := facetsSrc.load(cmd.Context(), svc)
		if err != nil {
			return err
		}
		f, err := svc.Facets(ds.ID)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, dim := range models.Dimensions {
			fmt.Fprintf(tw, "%s\t%d values\n", dim, len(f[dim]))
			for _, v := range f[dim] {
				fmt.Fprintf(tw, "\t%s\n", v)
			}
		}
		return tw.Flush()
	},
}

func init() { facetsSrc.bind(facetsCmd) }

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Print the offer catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := offers.Load(offersFile)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "offer\tcontacts\tchannels")
		for _, o := range cat.All() {
			target := strconv.Itoa(o.ContactsTarget)
			if o.Custom {
				target = fmt.Sprintf(">= %d", offers.MinCustomTarget)
			}
			fmt.Fprintf(tw, "%s\t%s\t%v\n", o.Name, target, o.DefaultChannels())
		}
		return tw.Flush()
	},
}

func init() {
	offersCmd.Flags().StringVar(&offersFile, "offers-file", "", "YAML offer catalogue, built-in when empty")
}
