package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/prospection-kpi/internal/metrics"
	"github.com/AngelCh415/prospection-kpi/internal/models"
)

const export = "Campagne,Secteur,Last Aircall call timestamp,Last used Aircall tags,lemlist lead status,Phase du cycle de vie\n" +
	"A,SaaS,2025-03-01 09:00:00,Meeting,,\n" +
	"A,SaaS,2025-03-02 09:00:00,No answer,Email opened,\n" +
	"B,Retail,,,,\n"

func TestWriteTextPlaceholders(t *testing.T) {
	rep := metrics.Compute(models.Table{{Campaign: "A"}})

	var buf bytes.Buffer
	require.NoError(t, writeText(&buf, rep))
	out := buf.String()

	assert.Regexp(t, `connection_rate\s+n/a`, out)
	assert.Regexp(t, `global_conversion_rate\s+0\.0%`, out)
	assert.Regexp(t, `total_contacts\s+1\n`, out)
	assert.Contains(t, out, "filtered_contacts")
}

func TestReportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, os.WriteFile(path, []byte(export), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"report", "-f", path, "--campaign", "A", "--offer", "Multi 4J", "--client", "Acme"})
	require.NoError(t, rootCmd.Execute())

	var rep models.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	assert.Equal(t, 2, rep.Contacts)
	assert.Equal(t, 2, rep.Metrics.TotalCalls)
	assert.Equal(t, 1, rep.Metrics.PhoneMeetings)
	assert.InDelta(t, 0.5, rep.Metrics.ConnectionRate.Value, 1e-9)
	require.NotNil(t, rep.Context)
	assert.Equal(t, "Acme", rep.Context.Client)
}

func TestOffersCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"offers"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, 7, strings.Count(out.String(), "\n"), "header plus six offers")
	assert.Contains(t, out.String(), "Multi 4J")
}
