package recon

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"otcswap/native/otc"
	"otcswap/services/otcd/indexer"
)

const (
	// Anomaly types emitted by the reconciler.
	AnomalyCustodyMismatch = "custody_mismatch"
	AnomalyOverdueOffer    = "overdue_offer"
	AnomalyFeeExceedsPay   = "fee_exceeds_payment"
	AnomalyTotalsOverflow  = "totals_overflow"
)

// FillSource lists indexed fills for a window.
type FillSource interface {
	FillsBetween(ctx context.Context, start, end time.Time) ([]indexer.Fill, error)
}

// Custody reports the open offers together with their vault balances.
type Custody interface {
	CustodySnapshot() ([]otc.CustodyEntry, error)
}

// AlertFunc is invoked for every anomaly detected during reconciliation.
type AlertFunc func(ctx context.Context, anomaly Anomaly) error

type Config struct {
	Fills     FillSource
	Custody   Custody
	OutputDir string
	DryRun    bool
	Now       func() time.Time
	Alert     AlertFunc
	Logger    *slog.Logger
}

type RunOptions struct {
	Start  time.Time
	End    time.Time
	DryRun bool
}

// Reconciler exports the day's fills and audits vault custody against the
// remaining amount of every open offer.
type Reconciler struct {
	fills     FillSource
	custody   Custody
	outputDir string
	dryRun    bool
	now       func() time.Time
	alert     AlertFunc
	logger    *slog.Logger
}

// Anomaly captures a reconciliation failure requiring operator review.
type Anomaly struct {
	Type    string
	Offer   string
	Details string
}

// ReportRow is one settled fill in the export.
type ReportRow struct {
	FillID        string
	Offer         string
	Taker         string
	InputAsset    string
	OutputAsset   string
	InputAmount   uint64
	PaymentAmount uint64
	FeeAmount     uint64
	Remaining     uint64
	SettledAt     time.Time
}

// ReportFile references the CSV and Parquet artefacts written for one
// output asset.
type ReportFile struct {
	OutputAsset string
	CSVPath     string
	ParquetPath string
	Count       int
}

// AssetTotals aggregates the fills settled in one output asset. Overflowed
// marks sums pinned at the uint64 maximum.
type AssetTotals struct {
	Fills      int
	Payments   uint64
	Fees       uint64
	Overflowed bool
}

func saturate(sum, carry uint64) uint64 {
	if carry != 0 {
		return ^uint64(0)
	}
	return sum
}

// Result summarises one run. CustodyOffers counts offers whose vault is still
// open; ExpiredOffers is the subset past expiry waiting to be reclaimed.
type Result struct {
	Start         time.Time
	End           time.Time
	Rows          []*ReportRow
	Files         []ReportFile
	Anomalies     []Anomaly
	Totals        map[string]AssetTotals
	CustodyOffers int
	ExpiredOffers int
}

func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Fills == nil {
		return nil, errors.New("recon: fill source is required")
	}
	if cfg.Custody == nil {
		return nil, errors.New("recon: custody source is required")
	}
	outputDir := cfg.OutputDir
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Join("otc-data", "recon")
	}
	alert := cfg.Alert
	if alert == nil {
		alert = func(context.Context, Anomaly) error { return nil }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		fills:     cfg.Fills,
		custody:   cfg.Custody,
		outputDir: outputDir,
		dryRun:    cfg.DryRun,
		now:       nowFn,
		alert:     alert,
		logger:    logger,
	}, nil
}

// Run executes reconciliation for the supplied window.
func (r *Reconciler) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	start := opts.Start.UTC()
	end := opts.End.UTC()
	if end.Before(start) {
		return nil, fmt.Errorf("recon: end before start")
	}
	dryRun := r.dryRun || opts.DryRun

	fills, err := r.fills.FillsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("recon: load fills: %w", err)
	}

	rows := make([]*ReportRow, 0, len(fills))
	totals := make(map[string]AssetTotals)
	anomalies := make([]Anomaly, 0)
	for _, fill := range fills {
		row := &ReportRow{
			FillID:        fill.ID.String(),
			Offer:         fill.Offer,
			Taker:         fill.Taker,
			InputAsset:    fill.InputAsset,
			OutputAsset:   fill.OutputAsset,
			InputAmount:   fill.InputAmount,
			PaymentAmount: fill.PaymentAmount,
			FeeAmount:     fill.FeeAmount,
			Remaining:     fill.Remaining,
			SettledAt:     fill.CreatedAt.UTC(),
		}
		rows = append(rows, row)
		if fill.FeeAmount > fill.PaymentAmount {
			anomalies = append(anomalies, r.raise(ctx, Anomaly{
				Type:    AnomalyFeeExceedsPay,
				Offer:   fill.Offer,
				Details: fmt.Sprintf("fill %s fee %d against maker payment %d", row.FillID, fill.FeeAmount, fill.PaymentAmount),
			}))
		}
		t := totals[fill.OutputAsset]
		t.Fills++
		payments, payCarry := bits.Add64(t.Payments, fill.PaymentAmount, 0)
		fees, feeCarry := bits.Add64(t.Fees, fill.FeeAmount, 0)
		if payCarry != 0 || feeCarry != 0 {
			t.Overflowed = true
			anomalies = append(anomalies, r.raise(ctx, Anomaly{
				Type:    AnomalyTotalsOverflow,
				Offer:   fill.Offer,
				Details: fmt.Sprintf("fill %s overflows %s totals; sums are saturated", row.FillID, fill.OutputAsset),
			}))
			payments, fees = saturate(payments, payCarry), saturate(fees, feeCarry)
		}
		t.Payments, t.Fees = payments, fees
		totals[fill.OutputAsset] = t
	}

	entries, err := r.custody.CustodySnapshot()
	if err != nil {
		return nil, fmt.Errorf("recon: custody snapshot: %w", err)
	}
	nowUnix := r.now().Unix()
	expired := 0
	for _, entry := range entries {
		offer := entry.Offer
		addr := indexer.HexAddress(offer.Address)
		if offer.Status == otc.OfferExpired {
			expired++
		}
		if entry.VaultBalance != offer.TokenAmountRemaining {
			anomalies = append(anomalies, r.raise(ctx, Anomaly{
				Type:    AnomalyCustodyMismatch,
				Offer:   addr,
				Details: fmt.Sprintf("vault holds %d, offer remaining %d", entry.VaultBalance, offer.TokenAmountRemaining),
			}))
		}
		if offer.Status == otc.OfferOngoing && nowUnix > offer.Deadline {
			anomalies = append(anomalies, r.raise(ctx, Anomaly{
				Type:    AnomalyOverdueOffer,
				Offer:   addr,
				Details: fmt.Sprintf("deadline %d passed without expiry", offer.Deadline),
			}))
		}
	}

	files := make([]ReportFile, 0)
	if !dryRun && len(rows) > 0 {
		runDir := filepath.Join(r.outputDir, fmt.Sprintf("%s_%s", start.Format("20060102"), end.Format("20060102")))
		if err := os.MkdirAll(runDir, 0o755); err != nil {
			return nil, fmt.Errorf("recon: ensure output dir: %w", err)
		}
		grouped := groupRows(rows)
		assets := make([]string, 0, len(grouped))
		for asset := range grouped {
			assets = append(assets, asset)
		}
		sort.Strings(assets)
		for _, asset := range assets {
			group := grouped[asset]
			csvPath, parquetPath, err := r.writeReportFiles(runDir, asset, group)
			if err != nil {
				return nil, err
			}
			files = append(files, ReportFile{OutputAsset: asset, CSVPath: csvPath, ParquetPath: parquetPath, Count: len(group)})
		}
	}

	r.logger.Info("recon run complete",
		"fills", len(rows),
		"custody_offers", len(entries),
		"expired_offers", expired,
		"anomalies", len(anomalies),
		"dry_run", dryRun,
	)
	return &Result{
		Start:         start,
		End:           end,
		Rows:          rows,
		Files:         files,
		Anomalies:     anomalies,
		Totals:        totals,
		CustodyOffers: len(entries),
		ExpiredOffers: expired,
	}, nil
}

func (r *Reconciler) raise(ctx context.Context, anomaly Anomaly) Anomaly {
	r.logger.Warn("recon anomaly", "type", anomaly.Type, "offer", anomaly.Offer, "details", anomaly.Details)
	if err := r.alert(ctx, anomaly); err != nil {
		r.logger.Error("recon alert delivery failed", "error", err)
	}
	return anomaly
}

func groupRows(rows []*ReportRow) map[string][]*ReportRow {
	grouped := make(map[string][]*ReportRow)
	for _, row := range rows {
		key := strings.ToLower(row.OutputAsset)
		grouped[key] = append(grouped[key], row)
	}
	return grouped
}

func (r *Reconciler) writeReportFiles(baseDir, asset string, rows []*ReportRow) (string, string, error) {
	filename := "fills_" + strings.TrimPrefix(asset, "0x")
	csvPath := filepath.Join(baseDir, filename+".csv")
	if err := writeCSV(csvPath, rows); err != nil {
		return "", "", err
	}
	parquetPath := filepath.Join(baseDir, filename+".parquet")
	if err := writeParquet(parquetPath, rows); err != nil {
		return "", "", err
	}
	r.logger.Info("recon report written", "csv", csvPath, "parquet", parquetPath, "rows", len(rows))
	return csvPath, parquetPath, nil
}

var csvHeader = []string{
	"fill_id", "offer", "taker", "input_asset", "output_asset",
	"input_amount", "payment_amount", "fee_amount", "remaining", "settled_at",
}

func writeCSV(path string, rows []*ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("recon: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.FillID,
			row.Offer,
			row.Taker,
			row.InputAsset,
			row.OutputAsset,
			strconv.FormatUint(row.InputAmount, 10),
			strconv.FormatUint(row.PaymentAmount, 10),
			strconv.FormatUint(row.FeeAmount, 10),
			strconv.FormatUint(row.Remaining, 10),
			row.SettledAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("recon: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("recon: flush csv: %w", err)
	}
	return nil
}

type parquetRow struct {
	FillID        string `parquet:"name=fill_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Offer         string `parquet:"name=offer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Taker         string `parquet:"name=taker, type=BYTE_ARRAY, convertedtype=UTF8"`
	InputAsset    string `parquet:"name=input_asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	OutputAsset   string `parquet:"name=output_asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	InputAmount   int64  `parquet:"name=input_amount, type=INT64, convertedtype=UINT_64"`
	PaymentAmount int64  `parquet:"name=payment_amount, type=INT64, convertedtype=UINT_64"`
	FeeAmount     int64  `parquet:"name=fee_amount, type=INT64, convertedtype=UINT_64"`
	Remaining     int64  `parquet:"name=remaining, type=INT64, convertedtype=UINT_64"`
	SettledAt     int64  `parquet:"name=settled_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

func writeParquet(path string, rows []*ReportRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recon: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			FillID:        row.FillID,
			Offer:         row.Offer,
			Taker:         row.Taker,
			InputAsset:    row.InputAsset,
			OutputAsset:   row.OutputAsset,
			InputAmount:   int64(row.InputAmount),
			PaymentAmount: int64(row.PaymentAmount),
			FeeAmount:     int64(row.FeeAmount),
			Remaining:     int64(row.Remaining),
			SettledAt:     row.SettledAt.UnixMilli(),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("recon: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("recon: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("recon: close parquet file: %w", err)
	}
	return nil
}
