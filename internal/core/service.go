// Package core wires configuration, persistence, the client store, the CSV
// codec and the pipeline aggregator into the Service used by the CLI and the
// HTTP API.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"clientcore/internal/blob"
	"clientcore/internal/clientstore"
	"clientcore/internal/config"
	"clientcore/internal/csvcodec"
	"clientcore/internal/errs"
	"clientcore/internal/logging"
	"clientcore/internal/pipeline"
	"clientcore/pkg/domain"
)

// ExportPrefix prefixes CSV exports in the export blob store.
const ExportPrefix = "exports/"

const exportStampLayout = "20060102T150405.000Z"

// ErrWatchUnsupported is returned by Watch when the storage driver cannot
// observe writes from other processes.
var ErrWatchUnsupported = errors.New("storage driver does not support change notification")

// Service exposes the client operations shared by every outer surface.
type Service struct {
	store       *clientstore.Store
	persistence *Persistence
	notifier    domain.ChangeNotifier
	stages      []domain.Stage
	opts        serviceOptions
}

// Open builds a service from configuration: persistence, export store and
// the client store over them.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Service, error) {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p, err := OpenPersistence(ctx, cfg.Storage, o.log)
	if err != nil {
		return nil, err
	}
	if o.exports == nil {
		exports, err := OpenExportStore(ctx, cfg)
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("open export store: %w", err)
		}
		o.exports = exports
	}
	store, err := clientstore.Open(ctx, p.KV,
		clientstore.WithKey(cfg.Storage.Key),
		clientstore.WithStrictLoad(cfg.Storage.StrictLoad),
		clientstore.WithClock(o.now),
		clientstore.WithLogger(logging.Adapt(o.log.Named("store"))),
		clientstore.WithMetrics(o.metrics),
		clientstore.WithTracer(o.tracer),
	)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	s := newService(store, p.Notifier, o)
	s.persistence = p
	return s, nil
}

// NewService wraps an already opened store. notifier may be nil.
func NewService(store *clientstore.Store, notifier domain.ChangeNotifier, opts ...Option) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newService(store, notifier, o)
}

func newService(store *clientstore.Store, notifier domain.ChangeNotifier, o serviceOptions) *Service {
	return &Service{store: store, notifier: notifier, stages: domain.DefaultStages(), opts: o}
}

// Store returns the underlying client store.
func (s *Service) Store() *clientstore.Store { return s.store }

// Stages returns the pipeline columns in board order.
func (s *Service) Stages() []domain.Stage {
	out := make([]domain.Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// Close releases persistence resources.
func (s *Service) Close() error {
	if s.persistence == nil {
		return nil
	}
	return s.persistence.Close()
}

// List returns the clients matching stage and q, most recently created first.
// Empty stage and q match everything.
func (s *Service) List(stage domain.Stage, q string) []domain.ClientRecord {
	return clientstore.SortByCreatedDescending(s.store.Filter(clientstore.Search(stage, q)))
}

// Get returns the client with id or an error wrapping domain.ErrClientNotFound.
func (s *Service) Get(id int64) (domain.ClientRecord, error) {
	rec, ok := s.store.Get(id)
	if !ok {
		return domain.ClientRecord{}, fmt.Errorf("client %d: %w", id, domain.ErrClientNotFound)
	}
	return rec, nil
}

// Create inserts a new client. An empty stage starts the client as a Lead.
func (s *Service) Create(ctx context.Context, draft domain.ClientDraft) (domain.ClientRecord, error) {
	if strings.TrimSpace(string(draft.Stage)) == "" {
		draft.Stage = domain.StageLead
	} else {
		st, err := s.parseStage(string(draft.Stage))
		if err != nil {
			return domain.ClientRecord{}, err
		}
		draft.Stage = st
	}
	rec, err := s.store.Insert(ctx, draft)
	if err != nil {
		return domain.ClientRecord{}, err
	}
	s.opts.log.Info("client created", zap.Int64("id", rec.ID))
	return rec, nil
}

// Replace overwrites an existing client wholesale. Unlike the store's Update it
// rejects unknown ids, since callers address a specific record.
func (s *Service) Replace(ctx context.Context, rec domain.ClientRecord) (domain.ClientRecord, error) {
	if _, err := s.Get(rec.ID); err != nil {
		return domain.ClientRecord{}, err
	}
	st, err := s.parseStage(string(rec.Stage))
	if err != nil {
		return domain.ClientRecord{}, err
	}
	rec.Stage = st
	return s.store.Update(ctx, rec)
}

// Edit applies mutate to a copy of the stored client and saves the result.
func (s *Service) Edit(ctx context.Context, id int64, mutate func(*domain.ClientRecord)) (domain.ClientRecord, error) {
	rec, err := s.Get(id)
	if err != nil {
		return domain.ClientRecord{}, err
	}
	mutate(&rec)
	rec.ID = id
	return s.Replace(ctx, rec)
}

// Move places the client in the named stage.
func (s *Service) Move(ctx context.Context, id int64, stage string) (domain.ClientRecord, error) {
	st, err := s.parseStage(stage)
	if err != nil {
		return domain.ClientRecord{}, err
	}
	return s.store.MoveToStage(ctx, id, st)
}

// Delete removes the client. Unknown ids are reported as not found.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.store.Remove(ctx, id)
}

func (s *Service) parseStage(raw string) (domain.Stage, error) {
	st, ok := domain.ParseStage(raw)
	if !ok {
		return "", errs.New(errs.InvalidArgument, fmt.Sprintf("unknown stage %q", raw))
	}
	return st, nil
}

// ExportCSV writes every client as CSV in store order.
func (s *Service) ExportCSV(w io.Writer) error {
	return csvcodec.EncodeTo(w, s.store.All())
}

// ExportToBlob writes the CSV export to the export store under
// exports/clients-<timestamp>.csv.
func (s *Service) ExportToBlob(ctx context.Context) (blob.Info, error) {
	if s.opts.exports == nil {
		return blob.Info{}, errs.New(errs.Unavailable, "no export store configured")
	}
	records := s.store.All()
	key := ExportPrefix + "clients-" + s.opts.now().UTC().Format(exportStampLayout) + ".csv"
	info, err := s.opts.exports.Put(ctx, key, strings.NewReader(csvcodec.Encode(records)), blob.PutOptions{
		ContentType: "text/csv; charset=utf-8",
		Metadata:    map[string]string{"records": fmt.Sprint(len(records))},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("store export %s: %w", key, err)
	}
	s.opts.log.Info("export stored", zap.String("key", info.Key), zap.Int("records", len(records)))
	return info, nil
}

// Exports lists stored CSV exports ordered by key, oldest first.
func (s *Service) Exports(ctx context.Context) ([]blob.Info, error) {
	if s.opts.exports == nil {
		return nil, errs.New(errs.Unavailable, "no export store configured")
	}
	return s.opts.exports.List(ctx, ExportPrefix)
}

// ImportCSV inserts every valid row of text as a new client.
func (s *Service) ImportCSV(ctx context.Context, text string) (csvcodec.ImportSummary, error) {
	summary, err := csvcodec.Import(ctx, s.store, text)
	fields := []zap.Field{
		zap.String("batch", summary.BatchID.String()),
		zap.Int("inserted", len(summary.Inserted)),
		zap.Int("failed", len(summary.Failed)),
	}
	if err != nil {
		s.opts.log.Error("import aborted", append(fields, zap.Error(err))...)
		return summary, err
	}
	s.opts.log.Info("import finished", fields...)
	return summary, nil
}

// Pipeline summarizes the clients per stage.
func (s *Service) Pipeline() pipeline.Summary {
	return pipeline.Summarize(s.store.All(), s.stages)
}

// Collector exports the live pipeline counts to prometheus.
func (s *Service) Collector() *pipeline.Collector {
	return pipeline.NewCollector(s.store.All, s.stages)
}

// Watch reloads the store when another process rewrites the persisted blob
// and calls onChange with the fresh records.
func (s *Service) Watch(onChange func([]domain.ClientRecord)) (func(), error) {
	if s.notifier == nil {
		return nil, ErrWatchUnsupported
	}
	return s.store.Watch(s.notifier, func(records []domain.ClientRecord) {
		s.opts.log.Info("clients reloaded", zap.Int("count", len(records)))
		if onChange != nil {
			onChange(records)
		}
	})
}
