// Package sync implements the setup/re-sync state machine: it validates the
// user's choices, builds and delivers the payload, and commits configuration
// state only after a confirmed successful delivery. Configuration writes are
// always the full next value computed from a preceding read; the property
// store has no partial-patch primitive.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tablecast/tablecast/internal/archive"
	"github.com/tablecast/tablecast/internal/catalog"
	"github.com/tablecast/tablecast/internal/delivery"
	"github.com/tablecast/tablecast/internal/document"
	"github.com/tablecast/tablecast/internal/normalize"
	"github.com/tablecast/tablecast/internal/props"
	"github.com/tablecast/tablecast/internal/store"
)

// Result messages surfaced to the setup UI.
const (
	msgInvalidTableName = "invalid table name"
	msgNoItemsSelected  = "no items selected"
	msgNoDataSelected   = "no data selected"
	msgDocumentNotFound = "document not found"
	msgInternalError    = "internal error"
)

// Store is the persistence surface the orchestrator operates on.
type Store interface {
	props.Bag

	GetForm(ctx context.Context, docID string) (*document.Form, error)
	GetSheetDocument(ctx context.Context, docID string) (*document.SheetDocument, error)
	GetSubmission(ctx context.Context, docID, subID string) (*document.Submission, error)
	Submissions(ctx context.Context, docID string) ([]*document.Submission, error)
	EnsureTrigger(ctx context.Context, docID string) error
	TriggerCount(ctx context.Context, docID string) (int, error)
}

// Result is the outcome reported to the UI for every sync operation.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func failure(message string) Result {
	return Result{Success: false, Message: message}
}

// FormsData is what the setup wizard needs to render the item checklist.
type FormsData struct {
	Title string         `json:"title"`
	Items []catalog.Item `json:"items"`
}

type formsBody struct {
	TableName string              `json:"tableName"`
	Responses []normalize.Payload `json:"responses"`
	User      string              `json:"user"`
}

type sheetsBody struct {
	TableName string  `json:"tableName"`
	Values    [][]any `json:"values"`
	User      string  `json:"user"`
}

// Orchestrator wires the catalog, normalizer, property store, trigger
// registry and delivery client into the sync flows.
type Orchestrator struct {
	store     Store
	deliverer delivery.Deliverer
	archiver  archive.Archiver
	forms     delivery.Endpoint
	sheets    delivery.Endpoint
}

// New creates an orchestrator.
func New(s Store, d delivery.Deliverer, a archive.Archiver, forms, sheets delivery.Endpoint) *Orchestrator {
	if a == nil {
		a = &archive.NoopArchiver{}
	}
	return &Orchestrator{store: s, deliverer: d, archiver: a, forms: forms, sheets: sheets}
}

// Context reports which document type the given ID resolves to: "forms",
// "sheets", or "" when the host has pushed no snapshot yet.
func (o *Orchestrator) Context(ctx context.Context, docID string) (string, error) {
	if _, err := o.store.GetForm(ctx, docID); err == nil {
		return "forms", nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	if _, err := o.store.GetSheetDocument(ctx, docID); err == nil {
		return "sheets", nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	return "", nil
}

// FormsData returns the form title and its selectable item catalog.
func (o *Orchestrator) FormsData(ctx context.Context, docID string) (FormsData, error) {
	form, err := o.store.GetForm(ctx, docID)
	if err != nil {
		return FormsData{}, err
	}
	return FormsData{Title: form.Title, Items: catalog.Items(form)}, nil
}

// FormsProperties returns the persisted forms configuration, or the default
// computed from the live snapshot (all items selected, derived table name)
// when the document has never been set up.
func (o *Orchestrator) FormsProperties(ctx context.Context, docID string) (props.FormsConfig, error) {
	form, err := o.store.GetForm(ctx, docID)
	if err != nil {
		return props.FormsConfig{}, err
	}
	fallback := props.DefaultForms(form.Title, catalog.Items(form))
	return props.ReadForms(ctx, o.store, docID, fallback)
}

// SheetsData snapshots the sync source range of the active sheet: either
// the host-side selection or the full data range.
func (o *Orchestrator) SheetsData(ctx context.Context, docID string, useSelection bool) (catalog.RangeSnapshot, error) {
	doc, err := o.store.GetSheetDocument(ctx, docID)
	if err != nil {
		return catalog.RangeSnapshot{}, err
	}
	return catalog.CaptureRange(doc, "", useSelection), nil
}

// SheetsProperties returns the persisted sheets configuration, or its
// computed default.
func (o *Orchestrator) SheetsProperties(ctx context.Context, docID string) (props.SheetsConfig, error) {
	doc, err := o.store.GetSheetDocument(ctx, docID)
	if err != nil {
		return props.SheetsConfig{}, err
	}
	sheetName := ""
	if sheet := doc.Sheet(""); sheet != nil {
		sheetName = sheet.Name
	}
	fallback := props.DefaultSheets(doc.Name, sheetName)
	return props.ReadSheets(ctx, o.store, docID, fallback)
}

// PostForms runs the forms setup submit: validate, normalize every stored
// submission, deliver the batch, and only on a confirmed 200 commit the new
// configuration and ensure the recurring trigger exists. On any failure no
// state changes.
func (o *Orchestrator) PostForms(ctx context.Context, docID, tableName string, itemIDs []int64, user string) Result {
	if !props.ValidTableName(tableName) {
		return failure(msgInvalidTableName)
	}
	if len(itemIDs) == 0 {
		return failure(msgNoItemsSelected)
	}

	form, err := o.store.GetForm(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		return failure(msgDocumentNotFound)
	}
	if err != nil {
		slog.Error("load form failed", "component", "sync", "doc_id", docID, "error", err)
		return failure(msgInternalError)
	}

	selected := catalog.Resolve(form, itemIDs)
	if len(selected) == 0 {
		return failure(msgNoItemsSelected)
	}

	subs, err := o.store.Submissions(ctx, docID)
	if err != nil {
		slog.Error("load submissions failed", "component", "sync", "doc_id", docID, "error", err)
		return failure(msgInternalError)
	}
	responses := make([]normalize.Payload, 0, len(subs))
	for _, sub := range subs {
		responses = append(responses, normalize.Submission(form, sub, selected))
	}

	body, err := json.Marshal(formsBody{TableName: tableName, Responses: responses, User: user})
	if err != nil {
		return failure(msgInternalError)
	}

	deliveryID := delivery.NewDeliveryID()
	if err := o.deliverer.Post(ctx, o.forms, deliveryID, body); err != nil {
		slog.Warn("forms delivery failed",
			"component", "sync",
			"action", "post_forms",
			"doc_id", docID,
			"delivery_id", deliveryID,
			"error", err,
		)
		return failure(deliveryMessage(err))
	}
	o.archive(ctx, docID, deliveryID, body)

	next := props.FormsConfig{TableName: tableName, Syncing: true, SelectedItems: selected}
	if err := props.WriteForms(ctx, o.store, docID, next); err != nil {
		slog.Error("commit forms config failed", "component", "sync", "doc_id", docID, "error", err)
		return failure(msgInternalError)
	}

	if err := o.ensureTrigger(ctx, docID); err != nil {
		slog.Error("trigger registration failed", "component", "sync", "doc_id", docID, "error", err)
		return failure(msgInternalError)
	}

	slog.Info("forms sync committed",
		"component", "sync",
		"action", "post_forms",
		"doc_id", docID,
		"table", tableName,
		"items", len(selected),
		"responses", len(responses),
	)
	return Result{Success: true}
}

// ensureTrigger registers the recurring submission trigger unless the
// document already has one. Repeated setup runs therefore never produce
// duplicates.
func (o *Orchestrator) ensureTrigger(ctx context.Context, docID string) error {
	count, err := o.store.TriggerCount(ctx, docID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return o.store.EnsureTrigger(ctx, docID)
}

// PostSheet runs the sheets one-shot push: validate, read the chosen range
// back from the snapshot, deliver the 2-D matrix, and on success commit the
// table name and push timestamp.
func (o *Orchestrator) PostSheet(ctx context.Context, docID, tableName, sheetName, a1, user string) Result {
	if !props.ValidTableName(tableName) {
		return failure(msgInvalidTableName)
	}

	doc, err := o.store.GetSheetDocument(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		return failure(msgDocumentNotFound)
	}
	if err != nil {
		slog.Error("load sheet document failed", "component", "sync", "doc_id", docID, "error", err)
		return failure(msgInternalError)
	}

	sheet := doc.Sheet(sheetName)
	if sheet == nil || a1 == "" {
		return failure(msgNoDataSelected)
	}
	rect, err := document.ParseA1(a1)
	if err != nil || rect.IsZero() {
		return failure(msgNoDataSelected)
	}

	body, err := json.Marshal(sheetsBody{TableName: tableName, Values: sheet.Slice(rect), User: user})
	if err != nil {
		return failure(msgInternalError)
	}

	deliveryID := delivery.NewDeliveryID()
	if err := o.deliverer.Post(ctx, o.sheets, deliveryID, body); err != nil {
		slog.Warn("sheets delivery failed",
			"component", "sync",
			"action", "post_sheet",
			"doc_id", docID,
			"delivery_id", deliveryID,
			"error", err,
		)
		return failure(deliveryMessage(err))
	}
	o.archive(ctx, docID, deliveryID, body)

	now := time.Now().UTC().Format(time.RFC3339)
	next := props.SheetsConfig{TableName: tableName, LastPushDate: &now}
	if err := props.WriteSheets(ctx, o.store, docID, next); err != nil {
		slog.Error("commit sheets config failed", "component", "sync", "doc_id", docID, "error", err)
		return failure(msgInternalError)
	}

	slog.Info("sheet push committed",
		"component", "sync",
		"action", "post_sheet",
		"doc_id", docID,
		"table", tableName,
		"range", rect.A1(),
	)
	return Result{Success: true}
}

// HandleSubmission is the recurring-trigger path: normalize exactly one new
// submission against the current configuration and deliver it. Any failure
// is fatal for this invocation: nothing is written and nothing is retried;
// the error surfaces in the host-visible logs of the caller.
func (o *Orchestrator) HandleSubmission(ctx context.Context, docID, submissionID string) error {
	form, err := o.store.GetForm(ctx, docID)
	if err != nil {
		return fmt.Errorf("load form: %w", err)
	}

	cfg, err := props.ReadForms(ctx, o.store, docID, props.FormsConfig{})
	if err != nil {
		return err
	}
	if !cfg.Syncing {
		return fmt.Errorf("document %s is not configured for sync", docID)
	}

	sub, err := o.store.GetSubmission(ctx, docID, submissionID)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}

	payload := normalize.Submission(form, sub, cfg.SelectedItems)
	body, err := json.Marshal(formsBody{
		TableName: cfg.TableName,
		Responses: []normalize.Payload{payload},
		User:      sub.Respondent,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	deliveryID := delivery.NewDeliveryID()
	if err := o.deliverer.Post(ctx, o.forms, deliveryID, body); err != nil {
		return err
	}
	o.archive(ctx, docID, deliveryID, body)

	slog.Info("submission synced",
		"component", "sync",
		"action", "handle_submission",
		"doc_id", docID,
		"submission_id", submissionID,
		"delivery_id", deliveryID,
	)
	return nil
}

// archive stores a delivered payload copy; failures are logged, never
// surfaced, and never affect the sync outcome.
func (o *Orchestrator) archive(ctx context.Context, docID, deliveryID string, body []byte) {
	if err := o.archiver.Store(ctx, docID, deliveryID, body); err != nil {
		slog.Warn("payload archive failed",
			"component", "sync",
			"doc_id", docID,
			"delivery_id", deliveryID,
			"error", err,
		)
	}
}

// deliveryMessage maps a delivery error to the UI-facing result message.
// "invalid setup" and "server error: <code>" pass through verbatim.
func deliveryMessage(err error) string {
	if errors.Is(err, delivery.ErrInvalidSetup) {
		return delivery.ErrInvalidSetup.Error()
	}
	return err.Error()
}
