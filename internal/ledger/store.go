// Package ledger appends validated expense records to the two accounting
// ledgers: the itemized expense sheet and the signed cash-movement sheet.
package ledger

import "context"

// TabularStore is the boundary to the remote spreadsheet backend. Ranges are
// addressed by sheet name and column letter span ("A:A", "A:H"). Rows are
// append-only; this engine never updates or deletes existing rows.
type TabularStore interface {
	// ReadRange returns the occupied rows within the given column span.
	ReadRange(ctx context.Context, sheet, span string) ([][]string, error)

	// AppendRows writes rows as a single batch starting at startRow (1-based)
	// and returns the number of rows written.
	AppendRows(ctx context.Context, sheet string, startRow int, rows [][]interface{}) (int, error)
}
