package store

import (
	"context"
	"testing"
	"time"

	"github.com/tablecast/tablecast/internal/document"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStore_FormRoundTrip(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	form := &document.Form{
		ID:     "form-1",
		Title:  "Survey",
		IsQuiz: true,
		Items: []document.FormItem{
			{ID: 1, Kind: document.KindText, Title: "Age"},
		},
	}
	if err := db.PutForm(ctx, form); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetForm(ctx, "form-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Survey" || !got.IsQuiz || len(got.Items) != 1 {
		t.Errorf("GetForm() = %+v", got)
	}
}

func TestStore_FormReplacedOnPut(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	if err := db.PutForm(ctx, &document.Form{ID: "form-1", Title: "Old"}); err != nil {
		t.Fatal(err)
	}
	if err := db.PutForm(ctx, &document.Form{ID: "form-1", Title: "New"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetForm(ctx, "form-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "New" {
		t.Errorf("title = %q, want New", got.Title)
	}
}

func TestStore_GetFormNotFound(t *testing.T) {
	db := newTestStore(t)

	_, err := db.GetForm(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_SheetDocumentRoundTrip(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	doc := &document.SheetDocument{
		ID:   "sheet-1",
		Name: "Budget",
		Sheets: []document.Sheet{
			{Name: "Q1", Values: [][]any{{"name", "amount"}, {"rent", 1200.0}}},
		},
	}
	if err := db.PutSheetDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetSheetDocument(ctx, "sheet-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Budget" || len(got.Sheets) != 1 || len(got.Sheets[0].Values) != 2 {
		t.Errorf("GetSheetDocument() = %+v", got)
	}
}

func TestStore_SubmissionsOrdered(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		sub := &document.Submission{ID: id, SubmittedAt: time.Now().UTC()}
		if err := db.AddSubmission(ctx, "form-1", sub); err != nil {
			t.Fatal(err)
		}
	}

	subs, err := db.Submissions(ctx, "form-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 3 {
		t.Fatalf("submissions = %d, want 3", len(subs))
	}
	for i, want := range []string{"s1", "s2", "s3"} {
		if subs[i].ID != want {
			t.Errorf("submission %d = %s, want %s", i, subs[i].ID, want)
		}
	}
}

func TestStore_SubmissionReplayIsUpsert(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	sub := &document.Submission{ID: "s1", Respondent: "a@example.com"}
	if err := db.AddSubmission(ctx, "form-1", sub); err != nil {
		t.Fatal(err)
	}
	sub.Respondent = "b@example.com"
	if err := db.AddSubmission(ctx, "form-1", sub); err != nil {
		t.Fatal(err)
	}

	subs, err := db.Submissions(ctx, "form-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 1 || subs[0].Respondent != "b@example.com" {
		t.Errorf("submissions = %+v", subs)
	}
}

func TestStore_GetSubmission(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	if err := db.AddSubmission(ctx, "form-1", &document.Submission{ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := db.GetSubmission(ctx, "form-1", "s1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetSubmission(ctx, "form-1", "nope"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := db.GetSubmission(ctx, "other-form", "s1"); err != ErrNotFound {
		t.Errorf("cross-document read err = %v, want ErrNotFound", err)
	}
}

func TestStore_Properties(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	_, found, err := db.GetProperty(ctx, "doc-1", "formsProps")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("expected missing property")
	}

	if err := db.SetProperty(ctx, "doc-1", "formsProps", []byte(`{"syncing":true}`)); err != nil {
		t.Fatal(err)
	}
	if err := db.SetProperty(ctx, "doc-1", "formsProps", []byte(`{"syncing":false}`)); err != nil {
		t.Fatal(err)
	}

	value, found, err := db.GetProperty(ctx, "doc-1", "formsProps")
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(value) != `{"syncing":false}` {
		t.Errorf("value = %s, found = %v", value, found)
	}

	// Properties are document-scoped.
	_, found, err = db.GetProperty(ctx, "doc-2", "formsProps")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("property leaked across documents")
	}
}

func TestStore_EnsureTriggerIdempotent(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := db.EnsureTrigger(ctx, "form-1"); err != nil {
			t.Fatal(err)
		}
	}

	count, err := db.TriggerCount(ctx, "form-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("trigger count = %d, want 1", count)
	}

	count, err = db.TriggerCount(ctx, "form-2")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("unrelated document trigger count = %d, want 0", count)
	}
}
