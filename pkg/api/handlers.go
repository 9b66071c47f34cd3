package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Sternrassler/chapters-api/pkg/cache"
	"github.com/Sternrassler/chapters-api/pkg/chapters"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

// ListResponse is the chapter list payload, and the cached document.
type ListResponse struct {
	Total    int                `json:"total"`
	Chapters []chapters.Chapter `json:"chapters"`
}

// UploadResponse reports a batch upload. Failed holds the rejected input
// records verbatim; Errors gives the reason for each, by input index.
type UploadResponse struct {
	Message     string                 `json:"message"`
	Inserted    int                    `json:"inserted"`
	FailedCount int                    `json:"failedCount"`
	Failed      []json.RawMessage      `json:"failed"`
	Errors      []chapters.RecordError `json:"errors"`
}

func (s *Server) root(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{
		"status": "ok",
		"store":  "ok",
		"cache":  "disabled",
	}

	if p, ok := s.store.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("Store health check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
			body["store"] = "unreachable"
		}
	}

	if s.cache != nil {
		client := s.cache.Client()
		body["cache"] = client.State().String()
		if client.State() == cache.StateReady {
			if err := client.Ping(r.Context()); err != nil {
				hlog.FromRequest(r).Warn().Err(err).Msg("Cache health check failed")
				body["cache"] = "degraded"
			} else if !s.cache.Available() {
				body["cache"] = "degraded"
			}
		}
	}
	if s.limiter != nil {
		body["rateLimit"] = s.limiter.Backend()
	}

	respondJSON(w, r, status, body)
}

func (s *Server) listChapters(w http.ResponseWriter, r *http.Request) {
	q, err := ParseListQuery(r.URL.Query())
	if err != nil {
		respondErr(w, r, err)
		return
	}

	key := q.CacheKey()
	// Coalesced callers share one query, so it must not die with whichever
	// request started it.
	ctx := context.WithoutCancel(r.Context())
	v, err, shared := s.group.Do(key.String(), func() (any, error) {
		return s.loadPage(ctx, q, key.Cacheable())
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if shared {
		hlog.FromRequest(r).Debug().Str("key", key.String()).Msg("Served coalesced list query")
	}

	if key.Cacheable() {
		w.Header().Set("X-Cache", "MISS")
	} else {
		w.Header().Set("X-Cache", "BYPASS")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v.([]byte))
}

// loadPage queries the store and, for the default view, populates the
// cache with the exact bytes that are returned. The cache is left alone
// when an upload completed while the query ran.
func (s *Server) loadPage(ctx context.Context, q ListQuery, cacheable bool) ([]byte, error) {
	gen := s.writes.Load()

	ctx, cancel := context.WithTimeout(ctx, s.config.QueryTimeout)
	defer cancel()

	total, err := s.store.Count(ctx, q.Filter)
	if err != nil {
		return nil, err
	}
	list, err := s.store.Find(ctx, q.Filter, q.Skip(), q.Limit)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ListResponse{Total: total, Chapters: list})
	if err != nil {
		return nil, fmt.Errorf("encode chapter list: %w", err)
	}

	if cacheable && s.cache != nil && s.cache.Available() {
		if s.writes.Load() != gen {
			s.logger.Debug().Str("key", cache.ChaptersKey).Msg("Skipped cache populate, listing changed during load")
			return body, nil
		}
		if err := s.cache.SetJSON(ctx, cache.ChaptersKey, json.RawMessage(body), cache.ChaptersTTL); err != nil {
			s.logger.Warn().Err(err).Str("key", cache.ChaptersKey).Msg("Failed to populate cache")
		}
	}
	return body, nil
}

func (s *Server) getChapter(w http.ResponseWriter, r *http.Request) {
	ch, err := s.store.FindByID(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, chapters.ErrInvalidID):
		respondError(w, r, http.StatusBadRequest, "Invalid chapter id")
	case errors.Is(err, chapters.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "Chapter not found")
	case err != nil:
		respondErr(w, r, err)
	default:
		respondJSON(w, r, http.StatusOK, ch)
	}
}

func (s *Server) uploadChapters(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	data, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", s.config.MaxUploadBytes))
			return
		}
		respondErr(w, r, err)
		return
	}

	records, err := chapters.ParseBatch(data)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, importErr := s.importer.Import(r.Context(), records)
	if importErr != nil {
		hlog.FromRequest(r).Warn().Err(importErr).Msg("Upload import interrupted")
	}

	// Runs even if nothing was inserted, and after a client disconnect.
	s.invalidate(context.WithoutCancel(r.Context()))

	respondJSON(w, r, http.StatusCreated, UploadResponse{
		Message:     "Chapters uploaded",
		Inserted:    result.Inserted,
		FailedCount: result.FailedCount(),
		Failed:      result.Failed,
		Errors:      result.Errors,
	})
}

// readUpload returns the contents of the multipart "file" field.
func readUpload(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, badRequest("Expected a multipart/form-data upload")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest(`Missing upload field "file"`)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return data, nil
}

// invalidate drops the cached listing and detaches in-flight default
// list loads, so later requests read the new data. Failures are logged only.
func (s *Server) invalidate(ctx context.Context) {
	s.writes.Add(1)
	s.group.Forget(cache.ChaptersKey)

	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cache.ChaptersKey); err != nil {
		s.logger.Warn().Err(err).Str("key", cache.ChaptersKey).Msg("Failed to invalidate cache")
	}
}
