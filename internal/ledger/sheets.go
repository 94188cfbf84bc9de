package ledger

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore implements TabularStore against the Google Sheets values API.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewSheetsStore creates a store authorized via a service-account
// credentials file.
func NewSheetsStore(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsStore, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("NewSheetsStore: create sheets service: %w", err)
	}
	return &SheetsStore{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// ReadRange implements TabularStore.
func (s *SheetsStore) ReadRange(ctx context.Context, sheet, span string) ([][]string, error) {
	rangeSpec := fmt.Sprintf("'%s'!%s", sheet, span)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("ReadRange: get %s: %w", rangeSpec, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, fmt.Sprint(cell))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// AppendRows implements TabularStore. The write targets the computed start
// row directly, matching the sheet's historical append convention.
func (s *SheetsStore) AppendRows(ctx context.Context, sheet string, startRow int, rows [][]interface{}) (int, error) {
	rangeSpec := fmt.Sprintf("'%s'!A%d", sheet, startRow)
	body := &sheets.ValueRange{Values: rows}

	resp, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, rangeSpec, body).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("AppendRows: update %s: %w", rangeSpec, err)
	}
	return int(resp.UpdatedRows), nil
}

// CheckSheets verifies that every named sheet tab exists in the spreadsheet.
func (s *SheetsStore) CheckSheets(ctx context.Context, names ...string) error {
	resp, err := s.svc.Spreadsheets.Get(s.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("CheckSheets: get spreadsheet: %w", err)
	}

	found := make(map[string]bool, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			found[sh.Properties.Title] = true
		}
	}

	var missing []string
	for _, name := range names {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("CheckSheets: missing sheet tabs: %s", strings.Join(missing, ", "))
	}
	return nil
}
