package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/AngelCh415/prospection-kpi/internal/models"
)

// Canonical column keys.
const (
	ColCallTimestamp = "call_timestamp"
	ColCallTag       = "call_tag"
	ColEmailStatus   = "email_status"
	ColLeadPhase     = "lead_phase"
	ColRecordDate    = "record_date"
	ColCampaign      = models.DimCampaign
	ColJobTitle      = models.DimJobTitle
	ColSector        = models.DimSector
	ColCompanySize   = models.DimCompanySize
	ColLocation      = models.DimLocation
)

// RequiredColumns must all be present in the header or ingestion fails.
var RequiredColumns = []string{ColCallTimestamp, ColCallTag, ColEmailStatus, ColLeadPhase}

// aliases maps normalised header names, as exported by the CRM, dialer and
// email tool, to canonical keys.
var aliases = map[string]string{
	"last_aircall_call_timestamp": ColCallTimestamp,
	"last_call_timestamp":         ColCallTimestamp,
	"call_timestamp":              ColCallTimestamp,

	"last_used_aircall_tags": ColCallTag,
	"call_tag":               ColCallTag,
	"call_tags":              ColCallTag,

	"lemlist_lead_status": ColEmailStatus,
	"email_lead_status":   ColEmailStatus,
	"email_status":        ColEmailStatus,

	"phase_du_cycle_de_vie": ColLeadPhase,
	"lifecycle_stage":       ColLeadPhase,
	"lead_phase":            ColLeadPhase,

	"date_de_la_derniere_activite": ColRecordDate,
	"last_activity_date":           ColRecordDate,
	"record_date":                  ColRecordDate,

	"campagne": ColCampaign,
	"campaign": ColCampaign,

	"intitule_du_poste": ColJobTitle,
	"job_title":         ColJobTitle,

	"secteur":  ColSector,
	"sector":   ColSector,
	"industry": ColSector,

	"taille_d_entreprise": ColCompanySize,
	"taille_entreprise":   ColCompanySize,
	"company_size":        ColCompanySize,

	"localisation": ColLocation,
	"location":     ColLocation,
}

// SchemaError reports required columns absent from the header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

var ErrEmptyInput = errors.New("empty csv input")

// ParseStats summarises one ingestion.
type ParseStats struct {
	Rows    int      `json:"rows"`
	Skipped int      `json:"skipped_rows"`
	Columns []string `json:"columns"`
}

// ParseCSV reads a contact export. The header is checked before any row is
// read; a missing required column returns *SchemaError. Malformed rows are
// skipped and counted, bad cell values become unknown values.
func ParseCSV(r io.Reader) (models.Table, ParseStats, error) {
	var stats ParseStats

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, stats, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, stats, ErrEmptyInput
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int)
	for i, h := range headers {
		key, ok := aliases[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
			stats.Columns = append(stats.Columns, key)
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, stats, &SchemaError{Missing: missing}
	}

	var table models.Table
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Skipped++
			continue
		}
		table = append(table, toContact(row, index))
	}
	stats.Rows = len(table)
	return table, stats, nil
}

func toContact(row []string, index map[string]int) models.Contact {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rawCall := cell(ColCallTimestamp)
	rawTag := cell(ColCallTag)
	rawStatus := cell(ColEmailStatus)

	c := models.Contact{
		Campaign:       cell(ColCampaign),
		JobTitle:       cell(ColJobTitle),
		Sector:         cell(ColSector),
		CompanySize:    cell(ColCompanySize),
		Location:       cell(ColLocation),
		Called:         rawCall != "",
		CallTag:        models.ParseCallTag(rawTag),
		RawCallTag:     rawTag,
		EmailStatus:    models.ParseEmailStatus(rawStatus),
		RawEmailStatus: rawStatus,
		LeadPhase:      cell(ColLeadPhase),
	}
	if t, ok := parseTime(rawCall); ok {
		c.LastCallAt = t
	}
	// an empty activity date falls back to the call; a malformed one stays unusable
	if raw := cell(ColRecordDate); raw != "" {
		c.RecordDate, c.HasRecordDate = parseTime(raw)
	} else if !c.LastCallAt.IsZero() {
		c.RecordDate, c.HasRecordDate = c.LastCallAt, true
	}
	return c
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

// parseTime accepts the layouts seen in the exports; day-first for slashed dates.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sniffDelimiter picks ';' when the header line has more semicolons than commas.
func sniffDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// normalizeHeader turns "Date de la dernière activité" into
// "date_de_la_derniere_activite".
func normalizeHeader(h string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(fold, strings.TrimSpace(h))
	if err != nil {
		s = h
	}
	s = strings.ToLower(s)
	var b strings.Builder
	underscore := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
