package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"otcswap/core/events"
	"otcswap/core/types"
	"otcswap/native/otc"
)

// Open connects to the indexer database. DSNs that look like Postgres URLs
// or keyword strings use the postgres driver; anything else is treated as a
// sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// DropRecorder counts events the indexer could not queue.
type DropRecorder interface {
	RecordDropped(sink, eventType string)
}

const defaultQueueSize = 1024

// Indexer projects engine events into SQL tables. Emit queues events and
// Run drains the queue. Emit never waits: when the queue is full the event is
// dropped and counted, and the gap shows up in the next reconciliation.
type Indexer struct {
	db      *gorm.DB
	logger  *slog.Logger
	queue   chan *types.Event
	done    chan struct{}
	now     func() time.Time
	dropped atomic.Uint64
	drops   DropRecorder
}

func New(db *gorm.DB, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		db:     db,
		logger: logger,
		queue:  make(chan *types.Event, defaultQueueSize),
		done:   make(chan struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetDropRecorder installs the sink notified about dropped events.
func (ix *Indexer) SetDropRecorder(r DropRecorder) {
	ix.drops = r
}

// Dropped reports how many events were discarded because the queue was full.
func (ix *Indexer) Dropped() uint64 {
	return ix.dropped.Load()
}

// DB exposes the underlying handle for read queries.
func (ix *Indexer) DB() *gorm.DB { return ix.db }

// Emit implements events.Emitter. Events that carry no attribute record are
// ignored. Once Run has returned, Emit drops events silently.
func (ix *Indexer) Emit(evt events.Event) {
	rec := events.Record(evt)
	if rec == nil {
		return
	}
	select {
	case <-ix.done:
		return
	default:
	}
	select {
	case ix.queue <- rec:
	default:
		ix.dropped.Add(1)
		if ix.drops != nil {
			ix.drops.RecordDropped("indexer", rec.Type)
		}
		ix.logger.Error("indexer queue full; event dropped", "type", rec.Type, "offer", rec.Attr(otc.AttrOffer))
	}
}

// Run applies queued events until ctx is cancelled, then drains what is left.
func (ix *Indexer) Run(ctx context.Context) {
	for {
		select {
		case evt := <-ix.queue:
			ix.applyLogged(ctx, evt)
		case <-ctx.Done():
			close(ix.done)
			for {
				select {
				case evt := <-ix.queue:
					ix.applyLogged(context.Background(), evt)
				default:
					return
				}
			}
		}
	}
}

func (ix *Indexer) applyLogged(ctx context.Context, evt *types.Event) {
	if err := ix.Apply(ctx, evt); err != nil {
		ix.logger.Error("indexer apply failed", "type", evt.Type, "offer", evt.Attr(otc.AttrOffer), "error", err)
	}
}

// Apply writes one event to the tables in a single transaction.
func (ix *Indexer) Apply(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	now := ix.now()
	payload, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	offer := evt.Attr(otc.AttrOffer)
	return ix.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&EventLog{
			ID:        uuid.New(),
			Type:      evt.Type,
			Offer:     offer,
			Payload:   string(payload),
			CreatedAt: now,
		}).Error; err != nil {
			return err
		}
		switch evt.Type {
		case otc.EventTypeOfferCreated:
			row := OfferRow{
				Address:             offer,
				OfferID:             parseUint(evt.Attr(otc.AttrOfferID)),
				Maker:               evt.Attr(otc.AttrMaker),
				InputAsset:          evt.Attr(otc.AttrInputAsset),
				OutputAsset:         evt.Attr(otc.AttrOutputAsset),
				TokenAmount:         parseUint(evt.Attr(otc.AttrTokenAmount)),
				Remaining:           parseUint(evt.Attr(otc.AttrTokenAmount)),
				ExpectedTotalAmount: parseUint(evt.Attr(otc.AttrExpectedAmount)),
				FeePercentage:       parseUint(evt.Attr(otc.AttrFeePercentage)),
				Deadline:            parseInt(evt.Attr(otc.AttrDeadline)),
				Status:              evt.Attr(otc.AttrStatus),
				CreatedAt:           now,
				UpdatedAt:           now,
			}
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
		case otc.EventTypeOfferTaken:
			fill := Fill{
				ID:            uuid.New(),
				Offer:         offer,
				Taker:         evt.Attr(otc.AttrTaker),
				InputAsset:    evt.Attr(otc.AttrInputAsset),
				OutputAsset:   evt.Attr(otc.AttrOutputAsset),
				InputAmount:   parseUint(evt.Attr(otc.AttrInputAmount)),
				PaymentAmount: parseUint(evt.Attr(otc.AttrPaymentAmount)),
				FeeAmount:     parseUint(evt.Attr(otc.AttrFeeAmount)),
				Remaining:     parseUint(evt.Attr(otc.AttrRemainingAmount)),
				CreatedAt:     now,
			}
			if err := tx.Create(&fill).Error; err != nil {
				return err
			}
			return ix.updateOffer(tx, offer, map[string]any{
				"remaining":  fill.Remaining,
				"status":     evt.Attr(otc.AttrStatus),
				"updated_at": now,
			})
		case otc.EventTypeOfferCancelled:
			return ix.updateOffer(tx, offer, map[string]any{
				"remaining":  0,
				"status":     evt.Attr(otc.AttrStatus),
				"updated_at": now,
			})
		case otc.EventTypeOfferExpired:
			return ix.updateOffer(tx, offer, map[string]any{
				"status":     evt.Attr(otc.AttrStatus),
				"updated_at": now,
			})
		}
		return nil
	})
}

func (ix *Indexer) updateOffer(tx *gorm.DB, offer string, updates map[string]any) error {
	return tx.Model(&OfferRow{}).Where("address = ?", offer).Updates(updates).Error
}

// FillsForOffer lists the fills of offer in settlement order.
func (ix *Indexer) FillsForOffer(ctx context.Context, offer [20]byte) ([]Fill, error) {
	var fills []Fill
	err := ix.db.WithContext(ctx).
		Where("offer = ?", HexAddress(offer)).
		Order("created_at asc, remaining desc").
		Find(&fills).Error
	return fills, err
}

// FillsBetween lists fills settled in [start, end).
func (ix *Indexer) FillsBetween(ctx context.Context, start, end time.Time) ([]Fill, error) {
	var fills []Fill
	err := ix.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", start, end).
		Order("created_at asc").
		Find(&fills).Error
	return fills, err
}

// Offer returns the projected row for offer.
func (ix *Indexer) Offer(ctx context.Context, offer [20]byte) (*OfferRow, error) {
	var row OfferRow
	if err := ix.db.WithContext(ctx).First(&row, "address = ?", HexAddress(offer)).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// HexAddress renders addr the way event attributes do.
func HexAddress(addr [20]byte) string {
	return fmt.Sprintf("0x%x", addr[:])
}

func parseUint(v string) uint64 {
	n, _ := strconv.ParseUint(v, 10, 64)
	return n
}

func parseInt(v string) int64 {
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
