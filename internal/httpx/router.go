package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AngelCh415/prospection-kpi/internal/ingest"
	"github.com/AngelCh415/prospection-kpi/internal/metrics"
	"github.com/AngelCh415/prospection-kpi/internal/offers"
	"github.com/AngelCh415/prospection-kpi/internal/store"
	"github.com/AngelCh415/prospection-kpi/internal/utils"
)

type Options struct {
	MaxUploadBytes int64
	Gatherer       prometheus.Gatherer
	Offers         *offers.Catalog
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func NewRouter(log *slog.Logger, svc *metrics.Service, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log))
	mux.Use(middleware.Recoverer)

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ready")) })
	mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	mux.Get("/offers", func(w http.ResponseWriter, r *http.Request) {
		if opts.Offers == nil {
			writeJSON(w, http.StatusOK, []offers.Offer{})
			return
		}
		writeJSON(w, http.StatusOK, opts.Offers.All())
	})

	mux.Route("/datasets", func(rt chi.Router) {
		rt.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, svc.Datasets())
		})

		rt.Post("/", func(w http.ResponseWriter, r *http.Request) {
			if src := r.URL.Query().Get("url"); src != "" {
				d, err := svc.IngestURL(r.Context(), src)
				if err != nil {
					writeErr(w, log, err)
					return
				}
				writeJSON(w, http.StatusCreated, d)
				return
			}
			name, body, err := uploadBody(w, r, opts.MaxUploadBytes)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					writeErr(w, log, err)
					return
				}
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
				return
			}
			defer body.Close()
			d, err := svc.Ingest(name, body)
			if err != nil {
				writeErr(w, log, err)
				return
			}
			writeJSON(w, http.StatusCreated, d)
		})

		rt.Route("/{id}", func(rt chi.Router) {
			rt.Get("/", func(w http.ResponseWriter, r *http.Request) {
				d, err := svc.Dataset(chi.URLParam(r, "id"))
				if err != nil {
					writeErr(w, log, err)
					return
				}
				writeJSON(w, http.StatusOK, d)
			})

			rt.Delete("/", func(w http.ResponseWriter, r *http.Request) {
				if err := svc.Delete(chi.URLParam(r, "id")); err != nil {
					writeErr(w, log, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			rt.Get("/facets", func(w http.ResponseWriter, r *http.Request) {
				f, err := svc.Facets(chi.URLParam(r, "id"))
				if err != nil {
					writeErr(w, log, err)
					return
				}
				writeJSON(w, http.StatusOK, f)
			})

			rt.Get("/kpis", func(w http.ResponseWriter, r *http.Request) {
				rep, err := svc.Report(chi.URLParam(r, "id"), metrics.ParseQuery(r.URL.Query()))
				if err != nil {
					writeErr(w, log, err)
					return
				}
				writeJSON(w, http.StatusOK, rep)
			})

			rt.Post("/export", func(w http.ResponseWriter, r *http.Request) {
				n, err := svc.Export(r.Context(), chi.URLParam(r, "id"), metrics.ParseQuery(r.URL.Query()))
				if err != nil {
					writeErr(w, log, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"exported": n})
			})
		})
	})

	return mux
}

// uploadBody accepts either a raw text/csv body or a multipart "file" field.
func uploadBody(w http.ResponseWriter, r *http.Request, limit int64) (string, io.ReadCloser, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mt, "multipart/") {
		return r.URL.Query().Get("name"), r.Body, nil
	}
	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, errors.New("multipart upload needs a file field")
	}
	if err != nil {
		return "", nil, fmt.Errorf("multipart upload: %w", err)
	}
	return hdr.Filename, f, nil
}

// writeErr maps domain errors to status codes.
func writeErr(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		schemaErr *ingest.SchemaError
		queryErr  *metrics.QueryError
		statusErr *ingest.StatusError
		maxErr    *http.MaxBytesError
		tooLarge  *ingest.TooLargeError
	)
	switch {
	case errors.As(err, &schemaErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   "schema",
			Details: map[string]string{"missing": strings.Join(schemaErr.Missing, ",")},
		})
	case errors.As(err, &queryErr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid query", Details: queryErr.Details})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ingest.ErrEmptyInput):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.As(err, &maxErr), errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
	case errors.Is(err, ingest.ErrURLNotAllowed):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, ingest.ErrSinkNotConfigured), errors.Is(err, metrics.ErrRemoteIngestDisabled):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.As(err, &statusErr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		log.Error("request failed", slog.String("err", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
