package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/composecomplete/internal/storage"
)

// ErrIngestInProgress is returned when another ingestion is still running
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Ingester feeds received statuses into the candidate caches
type Ingester struct {
	storage storage.Storage
	lock    IngestLock
}

// Config contains configuration for an ingestion run
type Config struct {
	Workers   int // Concurrent extraction workers (default: runtime.NumCPU())
	BatchSize int // Users or hashtags written per transaction (default: 100)
}

// Statistics describes one ingestion run
type Statistics struct {
	StatusesProcessed int
	StatusesFailed    int
	UsersCached       int // Distinct users written
	HashtagsCached    int // Hashtags new to the cache
	Duration          time.Duration
	ErrorMessages     []string
}

const defaultBatchSize = 100

// New creates an Ingester writing to store
func New(store storage.Storage) *Ingester {
	return &Ingester{storage: store}
}

// IngestStatuses extracts users and hashtags from statuses and caches them.
// Malformed statuses are counted and reported, not fatal.
func (in *Ingester) IngestStatuses(ctx context.Context, statuses []Status, config *Config) (*Statistics, error) {
	if !in.lock.TryAcquire() {
		return nil, ErrIngestInProgress
	}
	defer in.lock.Release()

	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	results, errs, err := extractAll(ctx, statuses, workers)
	if err != nil {
		return nil, fmt.Errorf("failed to extract statuses: %w", err)
	}

	users, hashtags := merge(results)
	for i, e := range errs {
		if e != nil {
			stats.StatusesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("status #%d (id %d): %v", i, statuses[i].ID, e))
			continue
		}
		stats.StatusesProcessed++
	}

	if err := in.writeUsers(ctx, users, batchSize, stats); err != nil {
		return nil, err
	}
	if err := in.writeHashtags(ctx, hashtags, batchSize, stats); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(startTime)
	return stats, nil
}

// extractAll runs extract over statuses with at most workers goroutines.
// Results and per-status errors are indexed like statuses.
func extractAll(ctx context.Context, statuses []Status, workers int) ([]extraction, []error, error) {
	results := make([]extraction, len(statuses))
	errs := make([]error, len(statuses))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range statuses {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i], errs[i] = extract(statuses[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return results, errs, nil
}

// merge flattens extractions in status order. A user seen twice keeps its
// latest profile; hashtags keep their first appearance.
func merge(results []extraction) ([]User, []string) {
	var (
		users    []User
		userPos  = map[int64]int{}
		hashtags []string
		seenTag  = map[string]bool{}
	)
	for _, ex := range results {
		for _, u := range ex.users {
			if pos, ok := userPos[u.ID]; ok {
				users[pos] = u
				continue
			}
			userPos[u.ID] = len(users)
			users = append(users, u)
		}
		for _, tag := range ex.hashtags {
			if seenTag[tag] {
				continue
			}
			seenTag[tag] = true
			hashtags = append(hashtags, tag)
		}
	}
	return users, hashtags
}

func (in *Ingester) writeUsers(ctx context.Context, users []User, batchSize int, stats *Statistics) error {
	for start := 0; start < len(users); start += batchSize {
		batch := users[start:min(start+batchSize, len(users))]
		err := in.inTx(ctx, func(tx storage.Tx) error {
			for _, u := range batch {
				cached := &storage.CachedUser{
					UserID:          u.ID,
					Name:            u.Name,
					ScreenName:      u.ScreenName,
					ProfileImageURL: u.ProfileImageURL,
				}
				if err := tx.UpsertUser(ctx, cached); err != nil {
					return fmt.Errorf("failed to cache user %d: %w", u.ID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		stats.UsersCached += len(batch)
	}
	return nil
}

func (in *Ingester) writeHashtags(ctx context.Context, hashtags []string, batchSize int, stats *Statistics) error {
	for start := 0; start < len(hashtags); start += batchSize {
		batch := hashtags[start:min(start+batchSize, len(hashtags))]
		added := 0
		err := in.inTx(ctx, func(tx storage.Tx) error {
			for _, tag := range batch {
				inserted, err := tx.AddHashtag(ctx, tag)
				if err != nil {
					return fmt.Errorf("failed to cache hashtag %q: %w", tag, err)
				}
				if inserted {
					added++
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		stats.HashtagsCached += added
	}
	return nil
}

// inTx runs fn in a transaction, committing only if fn succeeds
func (in *Ingester) inTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := in.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
