package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/db"
	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/provider"
	"github.com/n0obHere/fusionpbx-app-bulkvs/internal/bulkvs/schema"
)

// backgroundSyncTimeout bounds a fire-and-forget reconciliation kicked
// off by a warm read path. Longer than the provider's own timeouts so it
// never fires first.
const backgroundSyncTimeout = 2 * time.Minute

// service implements the Service interface.
type service struct {
	db          *db.DB
	client      provider.Client
	coordinator *Coordinator
	logger      *log.Logger
}

// New creates a Service instance.
//
// The database must be open with schema initialized. If logger is nil, a
// default logger writing to stderr is used.
func New(database *db.DB, client provider.Client, logger *log.Logger) Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &service{
		db:          database,
		client:      client,
		coordinator: NewCoordinator(database, logger),
		logger:      logger,
	}
}

// Sync implements Service.Sync.
func (s *service) Sync(ctx context.Context, rt schema.ResourceType, partition string) Outcome {
	if !rt.Valid() {
		return Outcome{Success: false, Message: fmt.Sprintf("invalid resource type %q", rt)}
	}

	lease, err := s.coordinator.TryAcquire(ctx, rt)
	if err != nil {
		return Outcome{Success: false, Message: err.Error()}
	}
	if lease == nil {
		// Busy is a no-op for callers, not an error. Report the last
		// known count so the UI has something to show.
		total := 0
		if status, serr := s.coordinator.Status(ctx, rt); serr == nil {
			total = status.ObservedCount
		}
		s.logger.Printf("Sync for %s already in progress, skipping", rt)
		return Outcome{Success: false, Message: "sync already in progress", TotalRecords: total}
	}

	// The lease must be cleared on every exit path, including a panic
	// somewhere in the engine; a stuck lease wedges the feature until
	// the staleness override kicks in.
	released := false
	defer func() {
		if !released {
			s.coordinator.Release(ctx, lease, false, 0, "reconciliation aborted")
		}
	}()

	before, err := s.countFor(ctx, rt, partition)
	if err != nil {
		s.coordinator.Release(ctx, lease, false, 0, err.Error())
		released = true
		return Outcome{Success: false, Message: err.Error()}
	}

	observed, err := s.reconcile(ctx, rt, partition)
	if err != nil {
		s.logger.Printf("Sync for %s failed: %v", rt, err)
		s.coordinator.Release(ctx, lease, false, 0, err.Error())
		released = true
		return Outcome{Success: false, Message: err.Error()}
	}

	s.coordinator.Release(ctx, lease, true, observed, "")
	released = true

	s.logger.Printf("Sync for %s complete: %d records (%+d)", rt, observed, observed-before)
	return Outcome{Success: true, NewRecords: observed - before, TotalRecords: observed}
}

// reconcile runs the fetch/normalize/upsert/purge/count pipeline for one
// resource type. Both types run through the same engine; only the
// plumbing differs.
func (s *service) reconcile(ctx context.Context, rt schema.ResourceType, partition string) (int, error) {
	switch rt {
	case schema.ResourceNumbers:
		return runEngine(ctx, engine[*schema.Number]{
			name: string(rt),
			fetch: func(ctx context.Context) ([]json.RawMessage, error) {
				return s.client.FetchNumbers(ctx, partition)
			},
			parse: func(raw json.RawMessage) (*schema.Number, error) {
				n, err := schema.ParseNumber(raw)
				if err != nil {
					return nil, err
				}
				n.TrunkGroup = partition
				return n, nil
			},
			upsert: s.db.UpsertNumberContext,
			purge: func(ctx context.Context, keep []string) error {
				// Purging without a trunk group scope would delete
				// every other trunk group's numbers.
				if partition == "" {
					return nil
				}
				return s.db.DeleteNumbersNotIn(ctx, partition, keep)
			},
			count: func(ctx context.Context) (int, error) {
				return s.db.CountNumbers(ctx, partition)
			},
			logger: s.logger,
		})

	case schema.ResourceE911:
		return runEngine(ctx, engine[*schema.E911Record]{
			name: string(rt),
			fetch: func(ctx context.Context) ([]json.RawMessage, error) {
				return s.client.FetchE911(ctx)
			},
			parse:  schema.ParseE911,
			upsert: s.db.UpsertE911Context,
			purge:  s.db.DeleteE911NotIn,
			count:  s.db.CountE911,
			logger: s.logger,
		})

	default:
		return 0, fmt.Errorf("unsupported resource type %q", rt)
	}
}

// engine is the per-resource-type plumbing the shared pass runs over.
type engine[R schema.Record] struct {
	name   string
	fetch  func(ctx context.Context) ([]json.RawMessage, error)
	parse  func(raw json.RawMessage) (R, error)
	upsert func(ctx context.Context, rec R) error
	purge  func(ctx context.Context, keep []string) error
	count  func(ctx context.Context) (int, error)
	logger *log.Logger
}

// runEngine executes one reconciliation pass.
//
// Ordering is load-bearing: every upsert completes before the purge, and
// the purge only runs after a complete, error-free fetch - a partial
// fetch returns before this point and leaves the cache untouched.
func runEngine[R schema.Record](ctx context.Context, e engine[R]) (int, error) {
	rows, err := e.fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("snapshot fetch failed: %w", err)
	}

	// keep collects every key in the snapshot, including rows whose
	// upsert failed - a failed write must not cause the purge to delete
	// the record's previous version.
	keep := make([]string, 0, len(rows))
	var skipped, writeFailed int

	for _, raw := range rows {
		rec, err := e.parse(raw)
		if err != nil {
			// Providers intermittently return malformed rows; skip
			// them rather than failing the pass.
			skipped++
			if !errors.Is(err, schema.ErrMissingTN) {
				e.logger.Printf("WARNING: skipping malformed %s row: %v", e.name, err)
			}
			continue
		}
		keep = append(keep, rec.Key())

		if err := e.upsert(ctx, rec); err != nil {
			writeFailed++
			if writeFailed <= 5 {
				e.logger.Printf("WARNING: failed to cache %s record %s: %v", e.name, rec.Key(), err)
			}
		}
	}

	if skipped > 0 || writeFailed > 0 {
		e.logger.Printf("Sync for %s: %d rows skipped, %d writes failed out of %d fetched",
			e.name, skipped, writeFailed, len(rows))
	}

	if err := e.purge(ctx, keep); err != nil {
		return 0, fmt.Errorf("purge failed: %w", err)
	}

	observed, err := e.count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return observed, nil
}

// countFor returns the current cached record count for a resource type.
func (s *service) countFor(ctx context.Context, rt schema.ResourceType, partition string) (int, error) {
	if rt == schema.ResourceNumbers {
		return s.db.CountNumbers(ctx, partition)
	}
	return s.db.CountE911(ctx)
}

// Numbers implements Service.Numbers.
func (s *service) Numbers(ctx context.Context, trunkGroup string) ([]*schema.Number, error) {
	numbers, err := s.db.ListNumbersContext(ctx, trunkGroup)
	if err != nil {
		return nil, err
	}

	if len(numbers) == 0 {
		// Cold cache: sync synchronously so the first page load has
		// data. A failed first sync still yields an empty list, never
		// an error - the caller renders an empty page.
		outcome := s.Sync(ctx, schema.ResourceNumbers, trunkGroup)
		if !outcome.Success {
			s.logger.Printf("Cold-cache numbers sync: %s", outcome.Message)
		}
		return s.db.ListNumbersContext(ctx, trunkGroup)
	}

	// Warm cache: serve immediately, refresh behind the response.
	s.backgroundSync(schema.ResourceNumbers, trunkGroup)
	return numbers, nil
}

// E911Records implements Service.E911Records.
func (s *service) E911Records(ctx context.Context) ([]*schema.E911Record, error) {
	records, err := s.db.ListE911Context(ctx)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		outcome := s.Sync(ctx, schema.ResourceE911, "")
		if !outcome.Success {
			s.logger.Printf("Cold-cache e911 sync: %s", outcome.Message)
		}
		return s.db.ListE911Context(ctx)
	}

	s.backgroundSync(schema.ResourceE911, "")
	return records, nil
}

// backgroundSync kicks off a fire-and-forget reconciliation. A Busy
// outcome is expected and silently dropped; anything else non-success is
// logged.
func (s *service) backgroundSync(rt schema.ResourceType, partition string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), backgroundSyncTimeout)
		defer cancel()

		outcome := s.Sync(ctx, rt, partition)
		if !outcome.Success && outcome.Message != "sync already in progress" {
			s.logger.Printf("Background sync for %s: %s", rt, outcome.Message)
		}
	}()
}

// Status implements Service.Status.
func (s *service) Status(ctx context.Context, rt schema.ResourceType) (*StatusView, error) {
	status, err := s.coordinator.Status(ctx, rt)
	if err != nil {
		return nil, err
	}

	return &StatusView{
		ResourceType:  rt,
		State:         status.State,
		HasChanges:    status.ObservedCount != status.AcknowledgedCount,
		TotalRecords:  status.ObservedCount,
		LastSyncStart: status.LeaseStartedAt,
		LastSyncEnd:   status.LeaseEndedAt,
		LastError:     status.LastError,
	}, nil
}

// Acknowledge implements Service.Acknowledge.
func (s *service) Acknowledge(ctx context.Context, rt schema.ResourceType) error {
	return s.coordinator.Acknowledge(ctx, rt)
}

// ForceRelease implements Service.ForceRelease.
func (s *service) ForceRelease(ctx context.Context, rt schema.ResourceType) error {
	return s.coordinator.ForceRelease(ctx, rt)
}
