// Package ingest runs one poll tick: probe the remote file, download it when
// its change token moved, parse the snapshot and append the reading.
//
// The poll state is explicit. Tick takes the state produced by the previous
// tick and returns the next one, so the state machine can be driven in tests
// without a network or a timer.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/pvwatch/internal/database"
	"github.com/tejusbharadwaj/pvwatch/internal/metrics"
	"github.com/tejusbharadwaj/pvwatch/internal/models"
	"github.com/tejusbharadwaj/pvwatch/internal/parser"
	"github.com/tejusbharadwaj/pvwatch/internal/remote"
)

// Outcome is the result of one tick.
type Outcome string

const (
	OutcomeIngested         Outcome = "ingested"
	OutcomeUnchanged        Outcome = "unchanged"
	OutcomeUnreachable      Outcome = "unreachable"
	OutcomeUnsupported      Outcome = "unsupported"
	OutcomeDownloadFailed   Outcome = "download_failed"
	OutcomeSchemaError      Outcome = "schema_error"
	OutcomeSkipped          Outcome = "skipped"
	OutcomePersistenceError Outcome = "persistence_error"
)

// Retryable reports whether the same remote revision will be tried again on
// the next tick.
func (o Outcome) Retryable() bool {
	switch o {
	case OutcomeUnreachable, OutcomeUnsupported, OutcomeDownloadFailed,
		OutcomeSchemaError, OutcomePersistenceError:
		return true
	}
	return false
}

// Healthy reports whether the tick reached the remote and left the log current.
func (o Outcome) Healthy() bool {
	return o == OutcomeIngested || o == OutcomeUnchanged
}

// State is the poll state carried between ticks.
type State struct {
	LastToken models.ChangeToken
	Seen      bool // false until a revision has been ingested or skipped

	// Consecutive parse failures of FailedToken.
	FailedToken    models.ChangeToken
	FailedAttempts int
}

// Downloader stores snapshots of the remote file.
type Downloader interface {
	Fetch(ctx context.Context) ([]byte, error)
	Commit(token models.ChangeToken, data []byte) (models.Snapshot, error)
}

// Parser turns snapshot bytes into a reading.
type Parser interface {
	Parse(data []byte) (models.Reading, error)
}

// Store is the write side of the time series log.
type Store interface {
	Append(ctx context.Context, reading models.Reading, source string) (int64, error)
}

// Config tunes one tick.
type Config struct {
	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration
	// SchemaRetries is how many times an unparsable revision is downloaded
	// again before it is skipped. At least one retry always happens.
	SchemaRetries int
	// FallbackOnUnsupported downloads every tick and compares content
	// fingerprints when the server has no modification times.
	FallbackOnUnsupported bool
	SourceTag             string
}

// Ingester executes poll ticks.
type Ingester struct {
	source     remote.Source
	downloader Downloader
	parser     Parser
	store      Store
	cfg        Config
	logger     *logrus.Logger
	now        func() time.Time
}

func NewIngester(src remote.Source, dl Downloader, p Parser, store Store, cfg Config, logger *logrus.Logger) *Ingester {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = remote.DefaultTimeout
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 2 * remote.DefaultTimeout
	}
	if cfg.SchemaRetries < 1 {
		cfg.SchemaRetries = 1
	}
	if cfg.SourceTag == "" {
		cfg.SourceTag = parser.SourceLive
	}
	return &Ingester{
		source:     src,
		downloader: dl,
		parser:     p,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Tick runs one probe/download/parse/append sequence. It never panics on
// remote or storage failures; the returned error is informational and the
// returned state is always safe to pass to the next tick.
func (in *Ingester) Tick(ctx context.Context, state State) (State, Outcome, error) {
	log := in.logger.WithField("tick", uuid.NewString())

	outcome, next, err := in.tick(ctx, log, state)
	metrics.Ticks.WithLabelValues(string(outcome)).Inc()
	return next, outcome, err
}

func (in *Ingester) tick(ctx context.Context, log *logrus.Entry, state State) (Outcome, State, error) {
	token, prefetched, err := in.probe(ctx, log)
	if err != nil {
		if errors.Is(err, remote.ErrUnsupported) {
			return OutcomeUnsupported, state, err
		}
		if errors.Is(err, remote.ErrDownloadFailed) {
			return OutcomeDownloadFailed, state, err
		}
		return OutcomeUnreachable, state, err
	}

	if state.Seen && token == state.LastToken {
		log.WithField("token", token).Info("token unchanged, nothing to do")
		return OutcomeUnchanged, state, nil
	}
	if state.Seen {
		log.WithFields(logrus.Fields{"previous": state.LastToken, "token": token}).Info("change detected")
	} else {
		log.WithField("token", token).Info("no prior token, forcing initial download")
	}

	data := prefetched
	if data == nil {
		dctx, cancel := context.WithTimeout(ctx, in.cfg.DownloadTimeout)
		data, err = in.downloader.Fetch(dctx)
		cancel()
		if err != nil {
			log.WithError(err).Error("download failed")
			if errors.Is(err, remote.ErrUnreachable) {
				return OutcomeUnreachable, state, err
			}
			return OutcomeDownloadFailed, state, err
		}
	}

	snap, err := in.downloader.Commit(token, data)
	if err != nil {
		log.WithError(err).Error("storing snapshot failed")
		return OutcomeDownloadFailed, state, err
	}
	log.WithFields(logrus.Fields{
		"archive": snap.ArchivePath,
		"bytes":   len(snap.Data),
	}).Info("snapshot saved")

	reading, err := in.parser.Parse(snap.Data)
	if err != nil {
		return in.schemaFailure(log, state, token, err)
	}
	log.WithFields(logrus.Fields{
		"timestamp":  reading.Timestamp,
		"live_power": reading.LivePower,
		"points":     len(reading.Curve),
	}).Info("snapshot parsed")

	id, err := in.store.Append(ctx, reading, in.cfg.SourceTag)
	if err != nil {
		log.WithError(err).Error("append failed")
		return OutcomePersistenceError, state, err
	}
	log.WithField("id", id).Info("reading appended")
	metrics.Appended.Inc()
	metrics.LastIngest.Set(float64(in.now().Unix()))

	return OutcomeIngested, State{LastToken: token, Seen: true}, nil
}

// probe returns the current change token. When the server cannot report one
// and the fallback is enabled, the file is fetched and its content
// fingerprint is used instead; the fetched bytes are returned for reuse.
func (in *Ingester) probe(ctx context.Context, log *logrus.Entry) (models.ChangeToken, []byte, error) {
	pctx, cancel := context.WithTimeout(ctx, in.cfg.ProbeTimeout)
	started := time.Now()
	token, err := in.source.Probe(pctx)
	cancel()
	metrics.ProbeLatency.Observe(time.Since(started).Seconds())

	if err == nil {
		log.WithField("token", token).Info("probe ok")
		return token, nil, nil
	}

	if !errors.Is(err, remote.ErrUnsupported) {
		log.WithError(err).Warn("probe failed: remote unreachable")
		return "", nil, err
	}
	if !in.cfg.FallbackOnUnsupported {
		log.WithError(err).Warn("probe failed: change token unsupported")
		return "", nil, err
	}

	log.WithError(err).Info("change token unsupported, comparing content instead")
	dctx, cancel := context.WithTimeout(ctx, in.cfg.DownloadTimeout)
	data, err := in.downloader.Fetch(dctx)
	cancel()
	if err != nil {
		log.WithError(err).Error("download failed")
		return "", nil, err
	}
	token = remote.ContentToken(data)
	log.WithField("token", token).Info("content fingerprint computed")
	return token, data, nil
}

// schemaFailure keeps the token unrecorded until the revision has failed
// SchemaRetries+1 times, then records it so the loop stops downloading it.
func (in *Ingester) schemaFailure(log *logrus.Entry, state State, token models.ChangeToken, err error) (Outcome, State, error) {
	next := state
	if state.FailedToken == token {
		next.FailedAttempts++
	} else {
		next.FailedToken = token
		next.FailedAttempts = 1
	}

	fields := logrus.Fields{"token": token, "attempt": next.FailedAttempts}
	if next.FailedAttempts > in.cfg.SchemaRetries {
		log.WithFields(fields).WithError(err).Error("parse failed, giving up on this revision")
		return OutcomeSkipped, State{LastToken: token, Seen: true}, err
	}

	log.WithFields(fields).WithError(err).Error("parse failed, will retry")
	return OutcomeSchemaError, next, err
}

var (
	_ Store  = database.TimeSeriesRepository(nil)
	_ Parser = (*parser.Parser)(nil)
)
