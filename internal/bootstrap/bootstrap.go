// Package bootstrap seeds the resource store from each configured
// query's current view before change events are applied on top.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"drasimcp/internal/config"
	"drasimcp/internal/drasi"
	"drasimcp/internal/store"
	"drasimcp/internal/syncpoint"
	"drasimcp/pkg/logging"
)

// ManagementAPI is the part of the management client bootstrap needs.
type ManagementAPI interface {
	WaitForQueryReady(ctx context.Context, queryID string, timeout time.Duration) error
}

// ViewAPI is the part of the view client bootstrap needs.
type ViewAPI interface {
	GetCurrentResult(ctx context.Context, queryID string) (*drasi.ViewStream, error)
}

// InitializerConfig holds the collaborators of an Initializer.
type InitializerConfig struct {
	Store      *store.Store
	SyncPoints *syncpoint.Manager
	Management ManagementAPI
	Views      ViewAPI

	// ReadinessTimeout bounds the wait for one query to become ready.
	// Zero means drasi.DefaultReadinessTimeout.
	ReadinessTimeout time.Duration
}

// Initializer loads the current result set of continuous queries into
// the store and establishes each query's synchronisation point.
type Initializer struct {
	store            *store.Store
	syncPoints       *syncpoint.Manager
	management       ManagementAPI
	views            ViewAPI
	readinessTimeout time.Duration
}

// NewInitializer creates an Initializer.
func NewInitializer(cfg InitializerConfig) *Initializer {
	timeout := cfg.ReadinessTimeout
	if timeout == 0 {
		timeout = drasi.DefaultReadinessTimeout
	}
	return &Initializer{
		store:            cfg.Store,
		syncPoints:       cfg.SyncPoints,
		management:       cfg.Management,
		views:            cfg.Views,
		readinessTimeout: timeout,
	}
}

// InitializeAll bootstraps every configured query concurrently. Any
// single failure aborts the whole bootstrap, because serving a subset
// of the configured result surface would be indistinguishable from
// those queries being empty.
func (i *Initializer) InitializeAll(ctx context.Context, queries []config.QueryConfig) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		g.Go(func() error {
			return i.InitializeQuery(ctx, query)
		})
	}
	return g.Wait()
}

// InitializeQuery bootstraps a single query: wait until the query is
// running, stream its current view, load the rows, then set the
// synchronisation point to the view's sequence. Re-running for an
// already initialised query is a no-op, so a retried bootstrap cannot
// double-apply a view. Any failure is returned as *Error.
func (i *Initializer) InitializeQuery(ctx context.Context, query config.QueryConfig) error {
	if i.syncPoints.IsInitialized(query.QueryID) {
		logging.Info("Bootstrap", "Query %s is already initialized, skipping", query.QueryID)
		return nil
	}
	if err := i.initializeQuery(ctx, query); err != nil {
		return &Error{QueryID: query.QueryID, Err: err}
	}
	return nil
}

func (i *Initializer) initializeQuery(ctx context.Context, query config.QueryConfig) error {
	logging.Info("Bootstrap", "Waiting for query %s to become ready", query.QueryID)
	if err := i.management.WaitForQueryReady(ctx, query.QueryID, i.readinessTimeout); err != nil {
		return fmt.Errorf("readiness: %w", err)
	}

	stream, err := i.views.GetCurrentResult(ctx, query.QueryID)
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}
	defer stream.Close()

	first, err := stream.Next()
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}
	if first.Header == nil {
		return fmt.Errorf("view stream did not start with a header")
	}
	sequence := first.Header.Sequence

	i.store.InitializeQuery(store.QueryMetadata{
		QueryID:       query.QueryID,
		KeyField:      query.KeyField,
		Description:   query.Description,
		ContentType:   query.ResourceContentType,
		InitializedAt: time.Now(),
	})

	loaded, skipped := 0, 0
	for {
		item, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("view: %w", err)
		}
		if item.Data == nil {
			logging.Warn("Bootstrap", "Skipping non-data item in view of query %s", query.QueryID)
			skipped++
			continue
		}

		key, ok := store.DeriveEntryKey(item.Data, query.KeyField)
		if !ok {
			logging.Warn("Bootstrap", "Skipping view row of query %s without usable key field %s", query.QueryID, query.KeyField)
			skipped++
			continue
		}
		if _, err := i.store.UpsertEntry(query.QueryID, key, item.Data); err != nil {
			return fmt.Errorf("view row %s: %w", key, err)
		}
		loaded++
	}

	i.syncPoints.Initialize(query.QueryID, sequence)
	logging.Info("Bootstrap", "Query %s initialized at sequence %d with %d entries (%d skipped)",
		query.QueryID, sequence, loaded, skipped)
	return nil
}
