package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tablecast/tablecast/internal/catalog"
	"github.com/tablecast/tablecast/internal/document"
	"github.com/tablecast/tablecast/internal/props"
	"github.com/tablecast/tablecast/internal/store"
	"github.com/tablecast/tablecast/internal/sync"
)

const testAPIKey = "test-key"

// mockDocuments records snapshot and event writes.
type mockDocuments struct {
	forms       map[string]*document.Form
	sheets      map[string]*document.SheetDocument
	submissions []*document.Submission
	triggers    map[string]int
}

func newMockDocuments() *mockDocuments {
	return &mockDocuments{
		forms:    make(map[string]*document.Form),
		sheets:   make(map[string]*document.SheetDocument),
		triggers: make(map[string]int),
	}
}

func (m *mockDocuments) PutForm(ctx context.Context, form *document.Form) error {
	m.forms[form.ID] = form
	return nil
}

func (m *mockDocuments) PutSheetDocument(ctx context.Context, doc *document.SheetDocument) error {
	m.sheets[doc.ID] = doc
	return nil
}

func (m *mockDocuments) AddSubmission(ctx context.Context, docID string, sub *document.Submission) error {
	m.submissions = append(m.submissions, sub)
	return nil
}

func (m *mockDocuments) TriggerCount(ctx context.Context, docID string) (int, error) {
	return m.triggers[docID], nil
}

// mockSyncer returns canned values and records calls.
type mockSyncer struct {
	context       string
	contextErr    error
	formsData     sync.FormsData
	formsDataErr  error
	formsCfg      props.FormsConfig
	sheetsSnap    catalog.RangeSnapshot
	sheetsCfg     props.SheetsConfig
	result        sync.Result
	handleErr     error
	handledSubIDs []string

	postFormsDocID string
	postFormsTable string
	postFormsItems []int64
	postFormsUser  string
}

func (m *mockSyncer) Context(ctx context.Context, docID string) (string, error) {
	return m.context, m.contextErr
}

func (m *mockSyncer) FormsData(ctx context.Context, docID string) (sync.FormsData, error) {
	return m.formsData, m.formsDataErr
}

func (m *mockSyncer) FormsProperties(ctx context.Context, docID string) (props.FormsConfig, error) {
	return m.formsCfg, nil
}

func (m *mockSyncer) SheetsData(ctx context.Context, docID string, useSelection bool) (catalog.RangeSnapshot, error) {
	return m.sheetsSnap, nil
}

func (m *mockSyncer) SheetsProperties(ctx context.Context, docID string) (props.SheetsConfig, error) {
	return m.sheetsCfg, nil
}

func (m *mockSyncer) PostForms(ctx context.Context, docID, tableName string, itemIDs []int64, user string) sync.Result {
	m.postFormsDocID = docID
	m.postFormsTable = tableName
	m.postFormsItems = itemIDs
	m.postFormsUser = user
	return m.result
}

func (m *mockSyncer) PostSheet(ctx context.Context, docID, tableName, sheetName, a1, user string) sync.Result {
	return m.result
}

func (m *mockSyncer) HandleSubmission(ctx context.Context, docID, submissionID string) error {
	m.handledSubIDs = append(m.handledSubIDs, submissionID)
	return m.handleErr
}

func newTestRouter(docs *mockDocuments, syncer *mockSyncer) http.Handler {
	return NewRouter(NewHandler(docs, syncer, testAPIKey, "test"))
}

func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuthRequired(t *testing.T) {
	router := newTestRouter(newMockDocuments(), &mockSyncer{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestAuth_Rejections(t *testing.T) {
	router := newTestRouter(newMockDocuments(), &mockSyncer{})

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong key", "Bearer wrong"},
		{"not bearer", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/context?doc=d", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
				t.Errorf("Content-Type = %q", ct)
			}
		})
	}
}

func TestGetContext(t *testing.T) {
	t.Run("forms", func(t *testing.T) {
		router := newTestRouter(newMockDocuments(), &mockSyncer{context: "forms"})
		rec := doRequest(t, router, http.MethodGet, "/api/v1/context?doc=form-1", nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Body.String(); got != "{\"context\":\"forms\"}\n" {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("unknown document is null", func(t *testing.T) {
		router := newTestRouter(newMockDocuments(), &mockSyncer{})
		rec := doRequest(t, router, http.MethodGet, "/api/v1/context?doc=nope", nil)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := rec.Body.String(); got != "{\"context\":null}\n" {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("missing doc param", func(t *testing.T) {
		router := newTestRouter(newMockDocuments(), &mockSyncer{})
		rec := doRequest(t, router, http.MethodGet, "/api/v1/context", nil)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestGetFormsData_NotFound(t *testing.T) {
	router := newTestRouter(newMockDocuments(), &mockSyncer{formsDataErr: store.ErrNotFound})
	rec := doRequest(t, router, http.MethodGet, "/api/v1/forms/nope/data", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var p Problem
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != http.StatusNotFound || p.Instance != "/api/v1/forms/nope/data" {
		t.Errorf("problem = %+v", p)
	}
}

func TestPostFormsSync_WiresRequestThrough(t *testing.T) {
	syncer := &mockSyncer{result: sync.Result{Success: true}}
	router := newTestRouter(newMockDocuments(), syncer)

	body := map[string]any{
		"tableName": "survey_2024",
		"itemIds":   []int64{1, 2},
		"user":      "owner@example.com",
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/forms/form-1/sync", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if syncer.postFormsDocID != "form-1" || syncer.postFormsTable != "survey_2024" {
		t.Errorf("call = %q/%q", syncer.postFormsDocID, syncer.postFormsTable)
	}
	if len(syncer.postFormsItems) != 2 || syncer.postFormsUser != "owner@example.com" {
		t.Errorf("items = %v, user = %q", syncer.postFormsItems, syncer.postFormsUser)
	}

	var result sync.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Errorf("result = %+v", result)
	}
}

func TestPostFormsSync_FailureIsStill200(t *testing.T) {
	syncer := &mockSyncer{result: sync.Result{Success: false, Message: "server error: 500"}}
	router := newTestRouter(newMockDocuments(), syncer)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/forms/form-1/sync",
		map[string]any{"tableName": "t", "itemIds": []int64{1}})

	// Sync outcomes are payload, not transport status.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result sync.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Success || result.Message != "server error: 500" {
		t.Errorf("result = %+v", result)
	}
}

func TestPutFormDocument_URLIsAuthoritative(t *testing.T) {
	docs := newMockDocuments()
	router := newTestRouter(docs, &mockSyncer{})

	body := document.Form{ID: "spoofed", Title: "Survey"}
	rec := doRequest(t, router, http.MethodPut, "/api/v1/forms/form-1/", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := docs.forms["form-1"]; !ok {
		t.Fatal("form not stored under URL document ID")
	}
	if _, ok := docs.forms["spoofed"]; ok {
		t.Error("body document ID should be ignored")
	}
}

func TestPutSheetDocument(t *testing.T) {
	docs := newMockDocuments()
	router := newTestRouter(docs, &mockSyncer{})

	body := document.SheetDocument{Name: "Budget", Sheets: []document.Sheet{{Name: "Q1"}}}
	rec := doRequest(t, router, http.MethodPut, "/api/v1/sheets/sheet-1/", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc, ok := docs.sheets["sheet-1"]
	if !ok || doc.Name != "Budget" {
		t.Errorf("stored = %+v", doc)
	}
}

func TestSubmissionEvent_StoredWithoutTrigger(t *testing.T) {
	docs := newMockDocuments()
	syncer := &mockSyncer{}
	router := newTestRouter(docs, syncer)

	body := map[string]any{
		"docId":      "form-1",
		"submission": map[string]any{"respondent": "ada@example.com"},
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/events/submission", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(docs.submissions) != 1 {
		t.Fatalf("stored submissions = %d, want 1", len(docs.submissions))
	}
	// The service assigns an ID and timestamp when the host sends none.
	if docs.submissions[0].ID == "" || docs.submissions[0].SubmittedAt.IsZero() {
		t.Errorf("submission = %+v", docs.submissions[0])
	}
	if len(syncer.handledSubIDs) != 0 {
		t.Error("submission synced without a registered trigger")
	}
}

func TestSubmissionEvent_SyncedWithTrigger(t *testing.T) {
	docs := newMockDocuments()
	docs.triggers["form-1"] = 1
	syncer := &mockSyncer{}
	router := newTestRouter(docs, syncer)

	body := map[string]any{
		"docId":      "form-1",
		"submission": map[string]any{"id": "sub-1"},
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/events/submission", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(syncer.handledSubIDs) != 1 || syncer.handledSubIDs[0] != "sub-1" {
		t.Errorf("handled = %v", syncer.handledSubIDs)
	}
}

func TestSubmissionEvent_SyncFailureIs502(t *testing.T) {
	docs := newMockDocuments()
	docs.triggers["form-1"] = 1
	syncer := &mockSyncer{handleErr: errors.New("server error: 500")}
	router := newTestRouter(docs, syncer)

	body := map[string]any{
		"docId":      "form-1",
		"submission": map[string]any{"id": "sub-1"},
	}
	rec := doRequest(t, router, http.MethodPost, "/api/v1/events/submission", body)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	// The submission itself is still stored.
	if len(docs.submissions) != 1 {
		t.Errorf("stored submissions = %d, want 1", len(docs.submissions))
	}
}

func TestSubmissionEvent_MissingDocID(t *testing.T) {
	router := newTestRouter(newMockDocuments(), &mockSyncer{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/events/submission",
		map[string]any{"submission": map[string]any{"id": "sub-1"}})

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetSheetsData_SelectionFlag(t *testing.T) {
	syncer := &mockSyncer{sheetsSnap: catalog.RangeSnapshot{SheetName: "Q1", A1: "A1:B2", Columns: 2, Rows: 1}}
	router := newTestRouter(newMockDocuments(), syncer)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/sheets/sheet-1/data?selection=true", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap catalog.RangeSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.A1 != "A1:B2" || snap.SheetName != "Q1" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	router := newTestRouter(newMockDocuments(), &mockSyncer{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forms/form-1/sync", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
