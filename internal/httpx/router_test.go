package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/prospection-kpi/internal/ingest"
	"github.com/AngelCh415/prospection-kpi/internal/metrics"
	"github.com/AngelCh415/prospection-kpi/internal/offers"
	"github.com/AngelCh415/prospection-kpi/internal/store"
	"github.com/AngelCh415/prospection-kpi/internal/utils"
)

const exportCSV = "Campagne,Intitulé du poste,Date de la dernière activité,Last Aircall call timestamp,Last used Aircall tags,lemlist lead status,Phase du cycle de vie\n" +
	"A,CEO,2025-03-01,2025-03-01 09:00:00,Meeting,,\n" +
	"A,CTO,2025-03-02,2025-03-02 09:00:00,Sans Suite,Email opened,\n" +
	"B,CEO,2025-03-03,,,Email replied,RDV - Bon contact\n"

func newTestServer(t *testing.T, maxUpload int64) *httptest.Server {
	return newServer(t, maxUpload, nil)
}

// newRemoteServer enables ?url= ingestion restricted to hosts.
func newRemoteServer(t *testing.T, maxUpload int64, hosts ...string) *httptest.Server {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := ingest.NewFetcher(ingest.NewHTTPClient(time.Second), utils.NewBackoff(time.Millisecond, 0), log,
		ingest.WithMaxBytes(maxUpload),
		ingest.WithAllowedHosts(hosts))
	return newServer(t, maxUpload, f)
}

func newServer(t *testing.T, maxUpload int64, fetcher *ingest.Fetcher) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	cat, err := offers.Builtin()
	require.NoError(t, err)
	svc := metrics.NewService(metrics.Deps{
		Store:    store.NewMemoryStore(0),
		Fetcher:  fetcher,
		Offers:   cat,
		Log:      log,
		Registry: reg,
	})
	srv := httptest.NewServer(NewRouter(log, svc, Options{MaxUploadBytes: maxUpload, Gatherer: reg, Offers: cat}))
	t.Cleanup(srv.Close)
	return srv
}

func upload(t *testing.T, srv *httptest.Server, body string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/datasets?name=export.csv", "text/csv", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestUploadAndReport(t *testing.T) {
	srv := newTestServer(t, 0)

	code, ds := upload(t, srv, exportCSV)
	require.Equal(t, http.StatusCreated, code)
	id := ds["id"].(string)
	assert.Equal(t, 3.0, ds["contacts"])

	var rep map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/datasets/"+id+"/kpis", &rep))
	m := rep["metrics"].(map[string]any)
	assert.Equal(t, 2.0, m["total_calls"])
	assert.Equal(t, 2.0, m["connected_calls"])
	assert.Equal(t, 1.0, m["email_meetings"])
	assert.InDelta(t, 2.0/3, m["global_conversion_rate"], 1e-9)
	assert.Equal(t, "filtered_contacts", rep["global_conversion_denominator"])

	// campaign B has no calls: call rates are null, not 0
	var seg map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/datasets/"+id+"/kpis?campaign=B", &seg))
	m = seg["metrics"].(map[string]any)
	assert.Equal(t, 0.0, m["total_calls"])
	assert.Contains(t, m, "connection_rate")
	assert.Nil(t, m["connection_rate"])
	assert.Equal(t, map[string]any{"none": 1.0}, seg["breakdown"])
}

func TestMultipartUpload(t *testing.T) {
	srv := newTestServer(t, 0)

	body, ct := multipartBody(t, "file", exportCSV)
	resp, err := http.Post(srv.URL+"/datasets", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var ds map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ds))
	assert.Equal(t, "export.csv", ds["name"])
}

func TestUploadSchemaError(t *testing.T) {
	srv := newTestServer(t, 0)
	code, out := upload(t, srv, "Campagne,Secteur\nA,SaaS\n")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "schema", out["error"])
	assert.Contains(t, out["details"].(map[string]any)["missing"], "call_timestamp")
}

func TestUploadTooLarge(t *testing.T) {
	srv := newTestServer(t, 64)
	code, _ := upload(t, srv, exportCSV)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
}

func multipartBody(t *testing.T, field, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "export.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestMultipartUploadTooLarge(t *testing.T) {
	srv := newTestServer(t, 64)

	body, ct := multipartBody(t, "file", exportCSV)
	resp, err := http.Post(srv.URL+"/datasets", ct, body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestMultipartUploadWithoutFile(t *testing.T) {
	srv := newTestServer(t, 0)

	body, ct := multipartBody(t, "attachment", exportCSV)
	resp, err := http.Post(srv.URL+"/datasets", ct, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "multipart upload needs a file field", out["error"])
}

func postURL(t *testing.T, srv *httptest.Server, remote string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/datasets?url="+url.QueryEscape(remote), "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestRemoteIngest(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(exportCSV))
	}))
	defer remote.Close()

	srv := newRemoteServer(t, 1<<20, "127.0.0.1")
	code, ds := postURL(t, srv, remote.URL+"/export.csv")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 3.0, ds["contacts"])

	code, _ = postURL(t, srv, "ftp://127.0.0.1/export.csv")
	assert.Equal(t, http.StatusForbidden, code)

	elsewhere := newRemoteServer(t, 1<<20, "exports.example.com")
	code, _ = postURL(t, elsewhere, remote.URL+"/export.csv")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRemoteIngestTooLarge(t *testing.T) {
	big := strings.Repeat("A,CEO,2025-03-01,2025-03-01 09:00:00,Meeting,,\n", 2000)
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(exportCSV + big))
	}))
	defer remote.Close()

	srv := newRemoteServer(t, 64, "127.0.0.1")
	code, _ := postURL(t, srv, remote.URL)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)

	var list []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/datasets", &list))
	assert.Empty(t, list)
}

func TestBadQueryAndUnknownDataset(t *testing.T) {
	srv := newTestServer(t, 0)
	_, ds := upload(t, srv, exportCSV)
	id := ds["id"].(string)

	var out map[string]any
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/datasets/"+id+"/kpis?from=2025-13-01", &out))
	assert.Contains(t, out["details"], "from")

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/datasets/nope/kpis", nil))
}

func TestFacetsOffersAndDelete(t *testing.T) {
	srv := newTestServer(t, 0)
	_, ds := upload(t, srv, exportCSV)
	id := ds["id"].(string)

	var facets map[string][]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/datasets/"+id+"/facets", &facets))
	assert.Equal(t, []string{"CEO", "CTO"}, facets["job_title"])

	var list []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/offers", &list))
	assert.Len(t, list, 6)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/datasets/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/datasets/"+id, nil))
}

func TestExportWithoutSink(t *testing.T) {
	srv := newTestServer(t, 0)
	_, ds := upload(t, srv, exportCSV)

	resp, err := http.Post(srv.URL+"/datasets/"+ds["id"].(string)+"/export", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/datasets?url=http://crm.invalid/export.csv", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, 0)
	upload(t, srv, exportCSV)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(b), "kpi_datasets_ingested_total 1")
}
