package chapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ImportConfig holds batch import configuration.
type ImportConfig struct {
	// Workers is the number of records inserted in parallel.
	Workers int `yaml:"workers"`

	// RecordTimeout bounds each insert.
	RecordTimeout time.Duration `yaml:"record_timeout"`
}

// DefaultImportConfig returns the default import configuration.
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		Workers:       4,
		RecordTimeout: 5 * time.Second,
	}
}

// RecordError describes why one input record was not inserted.
type RecordError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// ImportResult reports a batch import. Failed holds the offending input
// records verbatim, in input order, and Errors the matching reasons.
type ImportResult struct {
	Inserted int               `json:"inserted"`
	Failed   []json.RawMessage `json:"failed"`
	Errors   []RecordError     `json:"errors"`
}

// FailedCount returns the number of records that were not inserted.
func (r ImportResult) FailedCount() int {
	return len(r.Failed)
}

// ParseBatch splits a JSON array document into its raw elements.
func ParseBatch(data []byte) ([]json.RawMessage, error) {
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("upload must be a JSON array of chapters: %w", err)
	}
	if records == nil {
		return nil, errors.New("upload must be a JSON array of chapters, got null")
	}
	return records, nil
}

// Importer validates and inserts batches of raw records. Each record
// succeeds or fails on its own; a bad record never aborts the batch.
type Importer struct {
	store    Store
	validate *validator.Validate
	config   ImportConfig
	logger   zerolog.Logger
}

// NewImporter creates an importer writing to store.
func NewImporter(store Store, config ImportConfig, logger zerolog.Logger) *Importer {
	if store == nil {
		panic("chapter store cannot be nil")
	}
	if config.Workers <= 0 {
		config.Workers = DefaultImportConfig().Workers
	}
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = DefaultImportConfig().RecordTimeout
	}
	return &Importer{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		config:   config,
		logger:   logger,
	}
}

type importJob struct {
	index  int
	record json.RawMessage
}

// Import inserts records using a bounded worker pool and reports per-record
// outcomes in input order. It returns an error only when ctx ends before
// every record was attempted.
func (im *Importer) Import(ctx context.Context, records []json.RawMessage) (ImportResult, error) {
	start := time.Now()
	defer func() { importDuration.Observe(time.Since(start).Seconds()) }()

	reasons := make([]string, len(records))
	inserted := make([]bool, len(records))

	jobs := make(chan importJob)
	var wg sync.WaitGroup
	for i := 0; i < im.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if err := im.importOne(ctx, job.record); err != nil {
					reasons[job.index] = err.Error()
					continue
				}
				inserted[job.index] = true
			}
		}()
	}

	var ctxErr error
	for i, rec := range records {
		if ctxErr = ctx.Err(); ctxErr == nil {
			select {
			case jobs <- importJob{index: i, record: rec}:
			case <-ctx.Done():
				ctxErr = ctx.Err()
			}
		}
		if ctxErr != nil {
			for j := i; j < len(records); j++ {
				reasons[j] = "import cancelled"
			}
			break
		}
	}
	close(jobs)
	wg.Wait()

	result := ImportResult{
		Failed: []json.RawMessage{},
		Errors: []RecordError{},
	}
	for i := range records {
		if inserted[i] {
			result.Inserted++
			continue
		}
		result.Failed = append(result.Failed, records[i])
		result.Errors = append(result.Errors, RecordError{Index: i, Reason: reasons[i]})
	}

	im.logger.Info().
		Int("records", len(records)).
		Int("inserted", result.Inserted).
		Int("failed", result.FailedCount()).
		Dur("duration", time.Since(start)).
		Msg("Import complete")

	if ctxErr != nil {
		return result, fmt.Errorf("import interrupted: %w", ctxErr)
	}
	return result, nil
}

func (im *Importer) importOne(ctx context.Context, raw json.RawMessage) error {
	ch, err := im.decode(raw)
	if err != nil {
		importRecords.WithLabelValues("invalid").Inc()
		return err
	}

	insertCtx, cancel := context.WithTimeout(ctx, im.config.RecordTimeout)
	defer cancel()

	if err := im.store.InsertOne(insertCtx, ch); err != nil {
		importRecords.WithLabelValues("failed").Inc()
		im.logger.Warn().Err(err).Str("subject", ch.Subject).Str("chapter", ch.Chapter).Msg("Chapter insert failed")
		return fmt.Errorf("insert failed: %w", err)
	}
	importRecords.WithLabelValues("inserted").Inc()
	return nil
}

// chapterInput shadows the store-assigned fields so client-supplied ids and
// timestamps are ignored rather than rejected.
type chapterInput struct {
	Chapter
	ID        json.RawMessage `json:"_id"`
	CreatedAt json.RawMessage `json:"createdAt"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
}

// decode parses and validates one record.
func (im *Importer) decode(raw json.RawMessage) (*Chapter, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return nil, errors.New("malformed record: expected an object")
	}
	var in chapterInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("malformed record: %w", err)
	}

	ch := &in.Chapter
	if err := im.validate.Struct(ch); err != nil {
		return nil, validationReason(err)
	}
	return ch, nil
}

func validationReason(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", jsonName(fe.Field())))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", jsonName(fe.Field()), fe.Param()))
		case "gte":
			parts = append(parts, fmt.Sprintf("%s must be >= %s", jsonName(fe.Namespace()), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", jsonName(fe.Namespace()), fe.Tag()))
		}
	}
	return errors.New("validation failed: " + strings.Join(parts, "; "))
}

// jsonName lower-cases the first letter of a Go field name.
func jsonName(field string) string {
	field = strings.TrimPrefix(field, "Chapter.")
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
