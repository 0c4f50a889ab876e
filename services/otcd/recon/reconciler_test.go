package recon

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"otcswap/core/state"
	"otcswap/native/otc"
	"otcswap/services/otcd/indexer"
	"otcswap/storage"
)

type stubFills struct{ fills []indexer.Fill }

func (s *stubFills) FillsBetween(ctx context.Context, start, end time.Time) ([]indexer.Fill, error) {
	return s.fills, nil
}

type stubCustody struct{ entries []otc.CustodyEntry }

func (s *stubCustody) CustodySnapshot() ([]otc.CustodyEntry, error) { return s.entries, nil }

var runAt = time.Date(2024, 12, 2, 1, 0, 0, 0, time.UTC)

func sampleFills() []indexer.Fill {
	usdc := indexer.HexAddress([20]byte{0xB2})
	eur := indexer.HexAddress([20]byte{0xC3})
	return []indexer.Fill{
		{ID: uuid.New(), Offer: "0x01", OutputAsset: usdc, InputAmount: 400, PaymentAmount: 792, FeeAmount: 8, Remaining: 600, CreatedAt: runAt.Add(-2 * time.Hour)},
		{ID: uuid.New(), Offer: "0x01", OutputAsset: usdc, InputAmount: 600, PaymentAmount: 1188, FeeAmount: 12, CreatedAt: runAt.Add(-time.Hour)},
		{ID: uuid.New(), Offer: "0x02", OutputAsset: eur, InputAmount: 10, PaymentAmount: 10, CreatedAt: runAt.Add(-time.Hour)},
	}
}

func TestReconcilerWritesReportsPerAsset(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewReconciler(Config{
		Fills:     &stubFills{fills: sampleFills()},
		Custody:   &stubCustody{},
		OutputDir: dir,
		Now:       func() time.Time { return runAt },
	})
	require.NoError(t, err)

	res, err := rec.Run(context.Background(), RunOptions{Start: runAt.Add(-24 * time.Hour), End: runAt})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	require.Empty(t, res.Anomalies)
	require.Len(t, res.Files, 2)

	usdc := indexer.HexAddress([20]byte{0xB2})
	require.Equal(t, AssetTotals{Fills: 2, Payments: 1980, Fees: 20}, res.Totals[usdc])

	for _, f := range res.Files {
		info, err := os.Stat(f.ParquetPath)
		require.NoError(t, err)
		require.Positive(t, info.Size())

		file, err := os.Open(f.CSVPath)
		require.NoError(t, err)
		records, err := csv.NewReader(file).ReadAll()
		file.Close()
		require.NoError(t, err)
		require.Equal(t, csvHeader, records[0])
		require.Len(t, records, f.Count+1)
	}
	require.Equal(t, filepath.Join(dir, "20241201_20241202"), filepath.Dir(res.Files[0].CSVPath))
}

func TestReconcilerAuditsCustody(t *testing.T) {
	var alerts []Anomaly
	rec, err := NewReconciler(Config{
		Fills: &stubFills{},
		Custody: &stubCustody{entries: []otc.CustodyEntry{
			{Offer: &otc.Offer{Address: [20]byte{1}, Status: otc.OfferOngoing, TokenAmountRemaining: 600, Deadline: runAt.Unix() + 60}, VaultBalance: 600},
			{Offer: &otc.Offer{Address: [20]byte{2}, Status: otc.OfferOngoing, TokenAmountRemaining: 500, Deadline: runAt.Unix() + 60}, VaultBalance: 499},
			{Offer: &otc.Offer{Address: [20]byte{3}, Status: otc.OfferOngoing, TokenAmountRemaining: 5, Deadline: runAt.Unix() - 1}, VaultBalance: 5},
		}},
		OutputDir: t.TempDir(),
		Now:       func() time.Time { return runAt },
		Alert: func(ctx context.Context, a Anomaly) error {
			alerts = append(alerts, a)
			return nil
		},
	})
	require.NoError(t, err)

	res, err := rec.Run(context.Background(), RunOptions{Start: runAt.Add(-time.Hour), End: runAt})
	require.NoError(t, err)
	require.Equal(t, 3, res.CustodyOffers)
	require.Zero(t, res.ExpiredOffers)
	require.Len(t, res.Anomalies, 2)
	require.Equal(t, AnomalyCustodyMismatch, res.Anomalies[0].Type)
	require.Equal(t, indexer.HexAddress([20]byte{2}), res.Anomalies[0].Offer)
	require.Equal(t, AnomalyOverdueOffer, res.Anomalies[1].Type)
	require.Equal(t, res.Anomalies, alerts)
	require.Empty(t, res.Files)
}

func TestReconcilerDryRunWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "recon")
	rec, err := NewReconciler(Config{Fills: &stubFills{fills: sampleFills()}, Custody: &stubCustody{}, OutputDir: dir})
	require.NoError(t, err)
	res, err := rec.Run(context.Background(), RunOptions{Start: runAt.Add(-time.Hour), End: runAt, DryRun: true})
	require.NoError(t, err)
	require.Empty(t, res.Files)
	_, err = os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestReconcilerRejectsInvertedWindow(t *testing.T) {
	rec, err := NewReconciler(Config{Fills: &stubFills{}, Custody: &stubCustody{}})
	require.NoError(t, err)
	_, err = rec.Run(context.Background(), RunOptions{Start: runAt, End: runAt.Add(-time.Second)})
	require.Error(t, err)
}

func TestNewReconcilerRequiresSources(t *testing.T) {
	_, err := NewReconciler(Config{Custody: &stubCustody{}})
	require.Error(t, err)
	_, err = NewReconciler(Config{Fills: &stubFills{}})
	require.Error(t, err)
}

func TestSchedulerNextRun(t *testing.T) {
	s := NewScheduler(SchedulerConfig{RunHour: 1, RunMinute: 30})
	before := time.Date(2024, 12, 2, 0, 15, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 12, 2, 1, 30, 0, 0, time.UTC), s.nextRun(before))
	after := time.Date(2024, 12, 2, 1, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 12, 3, 1, 30, 0, 0, time.UTC), s.nextRun(after))

	clamped := NewScheduler(SchedulerConfig{RunHour: 42, RunMinute: -3})
	require.Equal(t, 23, clamped.runHour)
	require.Equal(t, 0, clamped.runMinute)
}

func TestReconcilerAuditsExpiredCustody(t *testing.T) {
	admin, maker := [20]byte{0xAD}, [20]byte{0x01}
	input, output := [20]byte{0xA1}, [20]byte{0xB2}
	st, err := state.NewManager(storage.NewMemDB())
	require.NoError(t, err)
	engine := otc.NewEngine(st)
	now := runAt.Unix()
	engine.SetNowFunc(func() int64 { return now })
	require.NoError(t, engine.InitializeAdmin(admin, 100, [20]byte{0xFE}, false, nil))
	require.NoError(t, engine.Credit(maker, input, 1_000))
	offer, err := engine.CreateOffer(otc.CreateOfferParams{
		Maker: maker, OfferID: 1, InputAsset: input, OutputAsset: output,
		TokenAmount: 1_000, ExpectedTotalAmount: 2_000, Deadline: now + 60,
	})
	require.NoError(t, err)
	now += 61
	require.NoError(t, engine.MarkExpired(admin, offer.Address))

	rec, err := NewReconciler(Config{
		Fills:     &stubFills{},
		Custody:   engine,
		OutputDir: t.TempDir(),
		Now:       func() time.Time { return time.Unix(now, 0) },
	})
	require.NoError(t, err)
	res, err := rec.Run(context.Background(), RunOptions{Start: runAt, End: time.Unix(now, 0)})
	require.NoError(t, err)
	require.Equal(t, 1, res.CustodyOffers)
	require.Equal(t, 1, res.ExpiredOffers)
	require.Empty(t, res.Anomalies)

	_, err = engine.CancelOffer(maker, offer.Address)
	require.NoError(t, err)
	res, err = rec.Run(context.Background(), RunOptions{Start: runAt, End: time.Unix(now, 0)})
	require.NoError(t, err)
	require.Zero(t, res.CustodyOffers)
}

func TestReconcilerFlagsTotalsOverflow(t *testing.T) {
	usdc := indexer.HexAddress([20]byte{0xB2})
	fills := []indexer.Fill{
		{ID: uuid.New(), Offer: "0x01", OutputAsset: usdc, PaymentAmount: ^uint64(0) - 5, FeeAmount: 1, CreatedAt: runAt.Add(-time.Hour)},
		{ID: uuid.New(), Offer: "0x02", OutputAsset: usdc, PaymentAmount: 10, FeeAmount: 1, CreatedAt: runAt.Add(-time.Hour)},
	}
	rec, err := NewReconciler(Config{Fills: &stubFills{fills: fills}, Custody: &stubCustody{}, Now: func() time.Time { return runAt }})
	require.NoError(t, err)

	res, err := rec.Run(context.Background(), RunOptions{Start: runAt.Add(-24 * time.Hour), End: runAt, DryRun: true})
	require.NoError(t, err)
	require.Len(t, res.Anomalies, 1)
	require.Equal(t, AnomalyTotalsOverflow, res.Anomalies[0].Type)
	require.Equal(t, "0x02", res.Anomalies[0].Offer)
	require.Equal(t, AssetTotals{Fills: 2, Payments: ^uint64(0), Fees: 2, Overflowed: true}, res.Totals[usdc])
}
