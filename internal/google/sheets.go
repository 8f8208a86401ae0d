// Package google mirrors monthly statistics into a Google Sheets spreadsheet.
package google

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"shiftbook/internal/domain"
	"shiftbook/internal/export"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsService keeps one tab per month, named stats_YYYY-MM.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	now           func() time.Time

	mu     sync.Mutex
	sheets map[string]int64
}

var _ domain.StatsWriter = (*SheetsService)(nil)

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsService(srv, spreadsheetID), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID string) *SheetsService {
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		now:           time.Now,
		sheets:        make(map[string]int64),
	}
}

// TestConnection проверяет доступ к таблице
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

func sheetTitle(period string) string {
	return "stats_" + period
}

// WriteMonthStats replaces the month's tab with rows.
func (s *SheetsService) WriteMonthStats(ctx context.Context, period string, rows []domain.StatsRow) error {
	title := sheetTitle(period)
	if err := s.ensureSheet(ctx, title); err != nil {
		return err
	}

	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, title+"!A1:Z", &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", title, err)
	}

	values := make([][]interface{}, 0, len(rows)+2)
	values = append(values, []interface{}{"Period", period, "Updated", s.now().UTC().Format(time.RFC3339)})
	header := make([]interface{}, len(export.Headers))
	for i, h := range export.Headers {
		header[i] = h
	}
	values = append(values, header)
	values = append(values, export.Values(rows)...)

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, title+"!A1", &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", title, err)
	}
	return nil
}

func (s *SheetsService) ensureSheet(ctx context.Context, title string) error {
	s.mu.Lock()
	_, known := s.sheets[title]
	s.mu.Unlock()
	if known {
		return nil
	}

	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to get spreadsheet: %w", err)
	}
	s.mu.Lock()
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil {
			s.sheets[sheet.Properties.Title] = sheet.Properties.SheetId
		}
	}
	_, known = s.sheets[title]
	s.mu.Unlock()
	if known {
		return nil
	}

	resp, err := s.service.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to add sheet %s: %w", title, err)
	}

	var id int64
	if len(resp.Replies) > 0 && resp.Replies[0].AddSheet != nil && resp.Replies[0].AddSheet.Properties != nil {
		id = resp.Replies[0].AddSheet.Properties.SheetId
	}
	s.mu.Lock()
	s.sheets[title] = id
	s.mu.Unlock()
	return nil
}
