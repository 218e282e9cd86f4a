package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studiosync/internal/export/domain"
	"go.uber.org/zap"
)

const (
	FileMemberships       = "memberships.csv"
	FilePasses            = "passes.csv"
	FilePerformances      = "performances.csv"
	FileEvents            = "events.csv"
	FileLocations         = "locations.csv"
	FilePassTypes         = "pass_types.csv"
	FileRevenueCategories = "revenue_categories.csv"
	FileOrders            = "orders.csv"
	FileRegistrations     = "registrations.csv"
	FileRefunds           = "refunds.csv"
)

var ErrMissingExportDir = errors.New("missing_export_dir")

// Source reads an export written as one CSV file per table into dir.
// Missing files are empty tables. Rows with unparseable cells are logged and
// skipped; only a file that cannot be read fails the stream.
type Source struct {
	dir string
	log *zap.Logger
}

func New(dir string, log *zap.Logger) (*Source, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, ErrMissingExportDir
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{dir: dir, log: log.Named("export.csvsource")}, nil
}

func (s *Source) ReferenceTables(ctx context.Context) (domain.ReferenceTables, error) {
	var (
		tables domain.ReferenceTables
		err    error
	)
	if tables.Memberships, err = readAll(ctx, s, FileMemberships, membershipFromRow); err != nil {
		return tables, err
	}
	if tables.Passes, err = readAll(ctx, s, FilePasses, passFromRow); err != nil {
		return tables, err
	}
	if tables.Performances, err = readAll(ctx, s, FilePerformances, performanceFromRow); err != nil {
		return tables, err
	}
	if tables.Events, err = readAll(ctx, s, FileEvents, eventFromRow); err != nil {
		return tables, err
	}
	if tables.Locations, err = readAll(ctx, s, FileLocations, locationFromRow); err != nil {
		return tables, err
	}
	if tables.PassTypes, err = readAll(ctx, s, FilePassTypes, passTypeFromRow); err != nil {
		return tables, err
	}
	if tables.RevenueCategories, err = readAll(ctx, s, FileRevenueCategories, revenueCategoryFromRow); err != nil {
		return tables, err
	}
	return tables, nil
}

func (s *Source) StreamOrders(ctx context.Context, batchSize int, fn func([]domain.Order) error) error {
	return stream(ctx, s, FileOrders, batchSize, orderFromRow, fn)
}

func (s *Source) StreamRegistrations(ctx context.Context, batchSize int, fn func([]domain.Registration) error) error {
	return stream(ctx, s, FileRegistrations, batchSize, registrationFromRow, fn)
}

func (s *Source) StreamRefunds(ctx context.Context, batchSize int, fn func([]domain.Refund) error) error {
	return stream(ctx, s, FileRefunds, batchSize, refundFromRow, fn)
}

func readAll[T any](ctx context.Context, s *Source, name string, mapRow func(row) (T, error)) ([]T, error) {
	var out []T
	err := stream(ctx, s, name, 1000, mapRow, func(batch []T) error {
		out = append(out, batch...)
		return nil
	})
	return out, err
}

func stream[T any](ctx context.Context, s *Source, name string, batchSize int, mapRow func(row) (T, error), fn func([]T) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("export file missing, treating as empty", zap.String("file", name))
			return nil
		}
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read %s header: %w", name, err)
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[normalizeHeader(h)] = i
	}

	batch := make([]T, 0, batchSize)
	line, skipped := 1, 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("read %s line %d: %w", name, line, err)
		}
		item, err := mapRow(row{columns: columns, values: record})
		if err != nil {
			skipped++
			s.log.Warn("export.csvsource.row_skipped",
				zap.String("file", name),
				zap.Int("line", line),
				zap.Error(err),
			)
			continue
		}
		batch = append(batch, item)
		if len(batch) == batchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(batch); err != nil {
				if errors.Is(err, domain.ErrStopStream) {
					return nil
				}
				return err
			}
			batch = make([]T, 0, batchSize)
		}
	}
	if skipped > 0 {
		s.log.Warn("export.csvsource.rows_skipped", zap.String("file", name), zap.Int("skipped", skipped))
	}
	if len(batch) > 0 {
		if err := fn(batch); err != nil && !errors.Is(err, domain.ErrStopStream) {
			return err
		}
	}
	return nil
}

func normalizeHeader(h string) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF"))
	h = strings.ToLower(h)
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return h
}

type row struct {
	columns map[string]int
	values  []string
}

func (r row) str(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[idx])
}

func (r row) money(name string) (decimal.Decimal, error) {
	raw := strings.NewReplacer("$", "", ",", "").Replace(r.str(name))
	if raw == "" {
		return decimal.Zero, nil
	}
	negative := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
	if negative {
		raw = strings.Trim(raw, "()")
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: invalid amount %q", name, raw)
	}
	if negative {
		value = value.Neg()
	}
	return value, nil
}

func (r row) boolean(name string) bool {
	switch strings.ToLower(r.str(name)) {
	case "1", "true", "t", "yes", "y":
		return true
	default:
		return false
	}
}

func (r row) integer(name string) int {
	value, err := strconv.Atoi(r.str(name))
	if err != nil {
		return 0
	}
	return value
}
