// =============================================================================
// depivot - Database Upload
// =============================================================================
//
// Uploads the combined long frame into a Postgres table. The target schema
// is fixed:
//
//   [L2_Proj, Site, Category, FiscalYear, Period, Actuals, Status]
//
// TransformForSQL reshapes the long frame into that schema: month names
// become 1-12 period numbers, the release date contributes the fiscal year,
// and site names resolve to L2_Proj codes through a lookup table fetched
// up front.
//
// =============================================================================

package sqlupload

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/depivot-tools/depivot/internal/frame"
)

// DatabaseError reports a failed database operation.
type DatabaseError struct {
	Message string
	Err     error
}

func (e *DatabaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func databaseErrorf(err error, format string, args ...any) *DatabaseError {
	return &DatabaseError{Message: fmt.Sprintf(format, args...), Err: err}
}

// sqlColumns is the target table's column order, also used for COPY.
var sqlColumns = []string{"L2_Proj", "Site", "Category", "FiscalYear", "Period", "Actuals", "Status"}

// monthToPeriod accepts full and abbreviated month names.
var monthToPeriod = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

// ConvertMonthToPeriod maps a month name to its 1-12 period number.
func ConvertMonthToPeriod(month any) (int, error) {
	if frame.IsMissing(month) {
		return 0, fmt.Errorf("month value is missing")
	}
	key := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", month)))
	period, ok := monthToPeriod[key]
	if !ok {
		return 0, fmt.Errorf("unrecognized month name: '%v'", month)
	}
	return period, nil
}

// ExtractFiscalYear reads the year from a YYYY-MM or YYYY_MM release date.
func ExtractFiscalYear(releaseDate string) (int, error) {
	s := strings.TrimSpace(releaseDate)
	if s == "" {
		return 0, fmt.Errorf("release date is empty")
	}
	yearPart := s
	if i := strings.IndexAny(s, "-_"); i >= 0 {
		yearPart = s[:i]
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return 0, fmt.Errorf("invalid release date format: '%s', expected YYYY-MM", releaseDate)
	}
	return year, nil
}

// FetchSiteMapping loads the site name -> L2_Proj mapping from the lookup
// table. The table name may be schema-qualified ("finance.site_names").
func FetchSiteMapping(ctx context.Context, connString, lookupTable string) (map[string]string, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, databaseErrorf(err, "failed to connect to database")
	}
	defer conn.Close(ctx)

	query := fmt.Sprintf(
		"SELECT DISTINCT site_name, l2_proj FROM %s WHERE l2_proj IS NOT NULL AND site_name IS NOT NULL",
		sanitizeTable(lookupTable))

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, databaseErrorf(err, "failed to fetch site mapping from %s", lookupTable)
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var site, l2Proj string
		if err := rows.Scan(&site, &l2Proj); err != nil {
			return nil, databaseErrorf(err, "failed to scan site mapping row")
		}
		mapping[site] = l2Proj
	}
	if err := rows.Err(); err != nil {
		return nil, databaseErrorf(err, "failed to read site mapping from %s", lookupTable)
	}
	return mapping, nil
}

// TransformForSQL reshapes a combined long frame into the upload schema.
// Rows with unmapped sites keep a NULL L2_Proj; unparseable months abort the
// transform because Period is not nullable.
func TransformForSQL(df *frame.Frame, siteMapping map[string]string, varName, valueName string, log *slog.Logger) (*frame.Frame, error) {
	if log == nil {
		log = slog.Default()
	}

	var missingCols []string
	for _, col := range []string{"Site", "Category", varName, valueName} {
		if !df.HasColumn(col) {
			missingCols = append(missingCols, col)
		}
	}
	if len(missingCols) > 0 {
		return nil, fmt.Errorf("required columns missing for SQL upload: %s",
			strings.Join(missingCols, ", "))
	}

	hasReleaseDate := df.HasColumn("ReleaseDate")
	if !hasReleaseDate {
		log.Warn("no ReleaseDate column, FiscalYear will be NULL")
	}
	hasDataType := df.HasColumn("DataType")
	if !hasDataType {
		log.Warn("no DataType column, Status will be NULL")
	}

	// Pre-validate months so the error can list every bad value at once.
	invalidMonths := map[string]bool{}
	for i := 0; i < df.NumRows(); i++ {
		if _, err := ConvertMonthToPeriod(df.Value(i, varName)); err != nil {
			invalidMonths[fmt.Sprintf("%v", df.Value(i, varName))] = true
		}
	}
	if len(invalidMonths) > 0 {
		var names []string
		for m := range invalidMonths {
			names = append(names, m)
		}
		return nil, fmt.Errorf("invalid month values in '%s' column: %s",
			varName, strings.Join(names, ", "))
	}

	out := frame.New(sqlColumns)
	missingSites := map[string]bool{}
	for i := 0; i < df.NumRows(); i++ {
		site := frame.CellString(df.Value(i, "Site"))
		period, _ := ConvertMonthToPeriod(df.Value(i, varName))

		var l2Proj any
		if proj, ok := siteMapping[site]; ok {
			l2Proj = proj
		} else {
			missingSites[site] = true
		}

		var fiscalYear any
		if hasReleaseDate {
			if year, err := ExtractFiscalYear(frame.CellString(df.Value(i, "ReleaseDate"))); err == nil {
				fiscalYear = year
			}
		}

		var status any
		if hasDataType {
			status = df.Value(i, "DataType")
		}

		out.AppendRow([]any{
			l2Proj,
			df.Value(i, "Site"),
			df.Value(i, "Category"),
			fiscalYear,
			period,
			nullableFloat(df.Value(i, valueName)),
			status,
		})
	}

	if len(missingSites) > 0 {
		var names []string
		for s := range missingSites {
			names = append(names, s)
			if len(names) == 5 {
				break
			}
		}
		log.Warn("no L2_Proj mapping for some sites",
			"count", len(missingSites), "sample", strings.Join(names, ", "))
	}
	return out, nil
}

// UploadStats summarizes one upload.
type UploadStats struct {
	RowsUploaded int
	Table        string
	Mode         string
}

// Upload bulk-inserts a transformed frame into the target table using COPY.
// Replace mode truncates the table first; a failed truncate is logged and
// the insert proceeds anyway.
func Upload(ctx context.Context, connString, tableName, mode string, df *frame.Frame, log *slog.Logger) (*UploadStats, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, databaseErrorf(err, "failed to connect to database")
	}
	defer conn.Close(ctx)

	if mode == "replace" {
		if _, err := conn.Exec(ctx, "TRUNCATE TABLE "+sanitizeTable(tableName)); err != nil {
			log.Warn("could not truncate table, continuing with insert",
				"table", tableName, "error", err)
		}
	}

	rows := make([][]any, df.NumRows())
	for i := 0; i < df.NumRows(); i++ {
		row := make([]any, df.NumColumns())
		for j, v := range df.Row(i) {
			if x, ok := v.(float64); ok && math.IsNaN(x) {
				v = nil
			}
			row[j] = v
		}
		rows[i] = row
	}

	count, err := conn.CopyFrom(ctx, tableIdentifier(tableName), sqlColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return nil, databaseErrorf(err, "failed to upload %d rows to %s", len(rows), tableName)
	}

	return &UploadStats{
		RowsUploaded: int(count),
		Table:        tableName,
		Mode:         mode,
	}, nil
}

// ValidateConnection verifies the database is reachable.
func ValidateConnection(ctx context.Context, connString string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return databaseErrorf(err, "cannot connect to database")
	}
	defer conn.Close(ctx)
	return conn.Ping(ctx)
}

func nullableFloat(v any) any {
	if x, ok := v.(float64); ok {
		if math.IsNaN(x) {
			return nil
		}
		return x
	}
	if frame.IsMissing(v) {
		return nil
	}
	return v
}

func tableIdentifier(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

func sanitizeTable(name string) string {
	return tableIdentifier(name).Sanitize()
}
