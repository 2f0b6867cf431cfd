// Package props reads and writes the per-document sync configuration. Each
// document type keeps a single JSON blob under a fixed key in a
// document-scoped property bag; reads fall back to a computed default when
// nothing is stored, and writes always replace the whole blob. Partial
// updates are the orchestrator's job: it reads, applies its changes, and
// writes the complete value back. No merge primitive exists here.
package props

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tablecast/tablecast/internal/catalog"
)

// Property bag keys, one blob per document type.
const (
	FormsKey  = "formsProps"
	SheetsKey = "sheetsProps"
)

// Bag is the document-scoped key-value store the configuration persists in.
// Get reports found=false when no value exists under the key; Set replaces
// the stored value wholesale.
type Bag interface {
	GetProperty(ctx context.Context, docID, key string) (value []byte, found bool, err error)
	SetProperty(ctx context.Context, docID, key string, value []byte) error
}

// FormsConfig is the persisted sync state of a form document.
type FormsConfig struct {
	TableName     string         `json:"tableName"`
	Syncing       bool           `json:"syncing"`
	SelectedItems []catalog.Item `json:"selectedItems"`
}

// SheetsConfig is the persisted sync state of a spreadsheet document.
// LastPushDate is null until the first successful push.
type SheetsConfig struct {
	TableName    string  `json:"tableName"`
	LastPushDate *string `json:"lastPushDate"`
}

var whitespace = regexp.MustCompile(`\s`)

// TableName derives a destination table name from a document title:
// lower-cased, every whitespace character replaced with an underscore.
func TableName(title string) string {
	return whitespace.ReplaceAllString(strings.ToLower(title), "_")
}

// ValidTableName reports whether a user-chosen table name passes the
// validation gate: non-empty and free of whitespace.
func ValidTableName(name string) bool {
	return name != "" && !whitespace.MatchString(name)
}

// DefaultForms computes the configuration for a form that has never been
// set up: not syncing, every catalog item selected, table name derived from
// the form title.
func DefaultForms(title string, items []catalog.Item) FormsConfig {
	return FormsConfig{
		TableName:     TableName(title),
		Syncing:       false,
		SelectedItems: items,
	}
}

// DefaultSheets computes the configuration for a spreadsheet that has never
// been pushed: no push date, table name derived from the spreadsheet and
// sheet names.
func DefaultSheets(spreadsheetName, sheetName string) SheetsConfig {
	return SheetsConfig{
		TableName:    TableName(spreadsheetName + "_" + sheetName),
		LastPushDate: nil,
	}
}

// ReadForms returns the stored forms configuration, or fallback when none
// exists yet. Absence is not an error; a corrupt blob is.
func ReadForms(ctx context.Context, bag Bag, docID string, fallback FormsConfig) (FormsConfig, error) {
	raw, found, err := bag.GetProperty(ctx, docID, FormsKey)
	if err != nil {
		return FormsConfig{}, fmt.Errorf("read forms properties: %w", err)
	}
	if !found {
		return fallback, nil
	}
	var cfg FormsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return FormsConfig{}, fmt.Errorf("decode forms properties: %w", err)
	}
	return cfg, nil
}

// WriteForms overwrites the stored forms configuration with the complete
// given value.
func WriteForms(ctx context.Context, bag Bag, docID string, cfg FormsConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode forms properties: %w", err)
	}
	return bag.SetProperty(ctx, docID, FormsKey, raw)
}

// ReadSheets returns the stored sheets configuration, or fallback when none
// exists yet.
func ReadSheets(ctx context.Context, bag Bag, docID string, fallback SheetsConfig) (SheetsConfig, error) {
	raw, found, err := bag.GetProperty(ctx, docID, SheetsKey)
	if err != nil {
		return SheetsConfig{}, fmt.Errorf("read sheets properties: %w", err)
	}
	if !found {
		return fallback, nil
	}
	var cfg SheetsConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return SheetsConfig{}, fmt.Errorf("decode sheets properties: %w", err)
	}
	return cfg, nil
}

// WriteSheets overwrites the stored sheets configuration with the complete
// given value.
func WriteSheets(ctx context.Context, bag Bag, docID string, cfg SheetsConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode sheets properties: %w", err)
	}
	return bag.SetProperty(ctx, docID, SheetsKey, raw)
}
