// Package importsources moves feed sources in and out of CSV files.
package importsources

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"newsbrief/aggregator/internal/models"
)

// Columns is the CSV header written by Export. name and feed_url are required on import.
var Columns = []string{"name", "website_url", "feed_url", "is_default", "is_active"}

// SourceInserter stores sources, skipping names the owner already has.
type SourceInserter interface {
	InsertIfAbsent(ctx context.Context, src *models.Source) (bool, error)
}

// Result summarizes an import.
type Result struct {
	Total      int
	Imported   int
	Duplicates int
	Errors     []string
}

// Importer handles the source import process
type Importer struct {
	store  SourceInserter
	client *http.Client
	logger zerolog.Logger
}

// NewImporter creates a new source importer. A nil client means http.DefaultClient.
func NewImporter(store SourceInserter, client *http.Client, logger zerolog.Logger) *Importer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Importer{store: store, client: client, logger: logger.With().Str("component", "import").Logger()}
}

// ImportFile imports sources from a local CSV file or an http(s) URL.
func (i *Importer) ImportFile(ctx context.Context, location string) (Result, error) {
	i.logger.Info().Str("csv", location).Msg("Starting source import")

	data, err := i.open(ctx, location)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get CSV data: %w", err)
	}
	defer data.Close()

	res, err := i.Import(ctx, data)
	if err != nil {
		return res, fmt.Errorf("failed to import sources: %w", err)
	}
	return res, nil
}

func (i *Importer) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		return os.Open(location)
	}

	i.logger.Debug().Str("url", location).Msg("Downloading CSV file")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file: HTTP status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Import reads sources from CSV data. Rows that cannot be stored are reported in
// Result.Errors; only an unreadable header or a store failure is returned as an error.
func (i *Importer) Import(ctx context.Context, csvData io.Reader) (Result, error) {
	reader := csv.NewReader(csvData)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	i.logger.Debug().Strs("header", header).Msg("CSV header read")

	nameIdx := findColumnIndex(header, "name")
	feedIdx := findColumnIndex(header, "feed_url")
	if nameIdx < 0 {
		return Result{}, fmt.Errorf("required column 'name' not found in CSV header")
	}
	if feedIdx < 0 {
		return Result{}, fmt.Errorf("required column 'feed_url' not found in CSV header")
	}
	websiteIdx := findColumnIndex(header, "website_url")
	defaultIdx := findColumnIndex(header, "is_default")
	activeIdx := findColumnIndex(header, "is_active")

	var res Result
	lineCount := 1
	for {
		lineCount++
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			i.logger.Warn().Err(err).Int("line", lineCount).Msg("Error reading CSV line")
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %v", lineCount, err))
			continue
		}
		if len(record) == 0 || (len(record) == 1 && record[0] == "") {
			continue
		}
		res.Total++

		src := models.NewSource()
		src.Name = strings.TrimSpace(safeGetValue(record, nameIdx).String)
		src.FeedURL = strings.TrimSpace(safeGetValue(record, feedIdx).String)
		src.WebsiteURL = strings.TrimSpace(safeGetValue(record, websiteIdx).String)
		// imported sources are shared unless the row says otherwise
		src.IsDefault = parseBool(safeGetValue(record, defaultIdx), true)
		src.IsActive = parseBool(safeGetValue(record, activeIdx), true)

		if src.Name == "" || src.FeedURL == "" {
			i.logger.Warn().Int("line", lineCount).Msg("Skipping row without name or feed URL")
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: name and feed_url are required", lineCount))
			continue
		}

		logger := i.logger.With().Int("line", lineCount).Str("source", src.Name).Logger()
		inserted, err := i.store.InsertIfAbsent(ctx, src)
		if err != nil {
			return res, err
		}
		if !inserted {
			logger.Warn().Msg("Duplicate source name")
			res.Duplicates++
			continue
		}
		res.Imported++
		logger.Debug().Msg("Source inserted successfully")
	}

	i.logger.Info().
		Int("total", res.Total).
		Int("imported", res.Imported).
		Int("duplicates", res.Duplicates).
		Int("errors", len(res.Errors)).
		Msg("Import summary")
	return res, nil
}

// Export writes the sources as CSV with the Columns header.
func Export(w io.Writer, sources []models.Source) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, s := range sources {
		row := []string{s.Name, s.WebsiteURL, s.FeedURL, strconv.FormatBool(s.IsDefault), strconv.FormatBool(s.IsActive)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func findColumnIndex(header []string, columnName string) int {
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), columnName) {
			return i
		}
	}
	return -1
}

// safeGetValue returns a sql.NullString from a record at the specified index.
// If the index is out of bounds or the value is empty, it returns an invalid NullString.
func safeGetValue(record []string, index int) sql.NullString {
	if index >= 0 && index < len(record) && record[index] != "" {
		return sql.NullString{
			String: record[index],
			Valid:  true,
		}
	}
	return sql.NullString{Valid: false}
}

func parseBool(v sql.NullString, def bool) bool {
	if !v.Valid {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v.String))
	if err != nil {
		return def
	}
	return b
}
