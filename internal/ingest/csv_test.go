package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/prospection-kpi/internal/models"
)

const hubspotExport = "\ufeffCampagne,Intitulé du poste,Secteur,Taille d'entreprise,Localisation,Date de la dernière activité,Last Aircall call timestamp,Last used Aircall tags,lemlist lead status,Phase du cycle de vie,Email\n" +
	"A,CEO,SaaS,11-50,Paris,2025-03-02,2025-03-01 10:00:00,Meeting,Email replied,RDV - Bon contact,a@x.fr\n" +
	"A,CTO,SaaS,11-50,Lyon,,2025-03-04T09:30:00Z,\"Standard, Pitch\",,Lead,b@x.fr\n" +
	"B,DAF,Retail,51-200,Lille,pas une date,,,Email opened,,c@x.fr\n" +
	"B,,Retail,,,03/03/2025,,,Paused,,d@x.fr\n"

func TestParseCSVHubspotHeaders(t *testing.T) {
	table, stats, err := ParseCSV(strings.NewReader(hubspotExport))
	require.NoError(t, err)
	require.Len(t, table, 4)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 0, stats.Skipped)
	assert.Contains(t, stats.Columns, ColRecordDate)

	first := table[0]
	assert.Equal(t, "A", first.Campaign)
	assert.Equal(t, "CEO", first.JobTitle)
	assert.Equal(t, "11-50", first.CompanySize)
	assert.True(t, first.Called)
	assert.Equal(t, models.TagMeeting, first.CallTag)
	assert.Equal(t, models.StatusReplied, first.EmailStatus)
	assert.Equal(t, models.PhaseMeetingBooked, first.LeadPhase)
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC), first.RecordDate)

	// missing activity date falls back to the call timestamp
	second := table[1]
	assert.Equal(t, models.TagPitch, second.CallTag)
	assert.Equal(t, models.StatusNone, second.EmailStatus)
	require.True(t, second.HasRecordDate)
	assert.Equal(t, 4, second.RecordDate.Day())

	// malformed date, no call: no usable date
	third := table[2]
	assert.False(t, third.Called)
	assert.False(t, third.HasRecordDate)
	assert.Equal(t, models.TagNone, third.CallTag)

	fourth := table[3]
	assert.Equal(t, models.StatusUnknown, fourth.EmailStatus)
	assert.Equal(t, "Paused", fourth.RawEmailStatus)
	assert.Equal(t, time.March, fourth.RecordDate.Month())
	assert.Equal(t, 3, fourth.RecordDate.Day())
}

func TestParseCSVMalformedActivityDateIgnoresCall(t *testing.T) {
	data := "record_date,call_timestamp,call_tag,email_status,lead_phase\n" +
		"not-a-date,2025-03-05 10:00:00,Meeting,,\n" +
		",2025-03-06 10:00:00,Pitch,,\n"

	table, _, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, table, 2)

	assert.True(t, table[0].Called)
	assert.False(t, table[0].HasRecordDate)
	assert.True(t, table[0].RecordDate.IsZero())

	require.True(t, table[1].HasRecordDate)
	assert.Equal(t, 6, table[1].RecordDate.Day())
}

func TestParseCSVSemicolonAndEnglishAliases(t *testing.T) {
	data := "campaign;job_title;last_call_timestamp;call_tag;email_lead_status;lead_phase\n" +
		"X;Head of Sales;2025-01-02;No answer;Email sent;\n"

	table, _, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, "X", table[0].Campaign)
	assert.Equal(t, models.TagNoAnswer, table[0].CallTag)
	assert.Equal(t, models.StatusSent, table[0].EmailStatus)
}

func TestParseCSVSchemaError(t *testing.T) {
	data := "Campagne,Last Aircall call timestamp,Phase du cycle de vie\nA,,\n"

	_, _, err := ParseCSV(strings.NewReader(data))

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{ColCallTag, ColEmailStatus}, se.Missing)
	assert.Contains(t, err.Error(), "call_tag")
}

func TestParseCSVEmpty(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("  \n"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseCSVShortRows(t *testing.T) {
	data := "call_timestamp,call_tag,email_status,lead_phase,campaign\n" +
		"2025-01-01,Meeting\n"

	table, _, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, table, 1)
	assert.Equal(t, models.TagMeeting, table[0].CallTag)
	assert.Empty(t, table[0].Campaign)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "date_de_la_derniere_activite", normalizeHeader(" Date de la dernière activité "))
	assert.Equal(t, "taille_d_entreprise", normalizeHeader("Taille d'entreprise"))
	assert.Equal(t, "intitule_du_poste", normalizeHeader("Intitulé du poste"))
	assert.Equal(t, "last_used_aircall_tags", normalizeHeader("Last used Aircall tags"))
}
