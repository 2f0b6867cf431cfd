// Package document models the host documents Tablecast syncs from: a form
// with its question items and submissions, or a spreadsheet with its sheets.
// The editing host pushes these snapshots to the service; nothing in here
// reaches back into the host.
package document

import "time"

// ItemKind identifies the type of a form item.
type ItemKind string

const (
	KindMultipleChoice ItemKind = "multipleChoice"
	KindCheckbox       ItemKind = "checkbox"
	KindDropdown       ItemKind = "dropdown"
	KindGrid           ItemKind = "grid"
	KindCheckboxGrid   ItemKind = "checkboxGrid"
	KindScale          ItemKind = "scale"
	KindText           ItemKind = "text"
	KindParagraph      ItemKind = "paragraph"
	KindDate           ItemKind = "date"
	KindTime           ItemKind = "time"
	KindDateTime       ItemKind = "datetime"
	KindDuration       ItemKind = "duration"
	KindPageBreak      ItemKind = "pageBreak"
	KindSectionHeader  ItemKind = "sectionHeader"
	KindImage          ItemKind = "image"
	KindVideo          ItemKind = "video"
)

// Presentational reports whether the kind carries no answer and is excluded
// from the selectable item catalog.
func (k ItemKind) Presentational() bool {
	switch k {
	case KindPageBreak, KindSectionHeader, KindImage, KindVideo:
		return true
	}
	return false
}

// Choice is a single option of a choice-kind item. IsCorrect is only
// meaningful when the owning form is a quiz.
type Choice struct {
	Value     string `json:"value"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

// FormItem is one question (or presentation element) of a form. Identity is
// by ID; titles may be edited without changing identity. Kind-specific fields
// are populated only for the kinds they belong to.
type FormItem struct {
	ID       int64    `json:"id"`
	Kind     ItemKind `json:"kind"`
	Title    string   `json:"title"`
	HelpText string   `json:"helpText,omitempty"`

	// Choice kinds (multipleChoice, checkbox, dropdown).
	Choices []Choice `json:"choices,omitempty"`

	// Grid kinds (grid, checkboxGrid).
	Rows    []string `json:"rows,omitempty"`
	Columns []string `json:"columns,omitempty"`

	// Scale.
	LeftLabel  string `json:"leftLabel,omitempty"`
	RightLabel string `json:"rightLabel,omitempty"`
	LowerBound int    `json:"lowerBound,omitempty"`
	UpperBound int    `json:"upperBound,omitempty"`

	// Grading metadata, meaningful only on quiz forms. Feedback fields stay
	// nil when the author configured no feedback text.
	Points            float64 `json:"points,omitempty"`
	FeedbackCorrect   *string `json:"feedbackCorrect,omitempty"`
	FeedbackIncorrect *string `json:"feedbackIncorrect,omitempty"`
	Feedback          *string `json:"feedback,omitempty"`
}

// Form is a snapshot of a form document.
type Form struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	IsQuiz bool       `json:"isQuiz"`
	Items  []FormItem `json:"items"`
}

// Item returns the item with the given ID, or nil when the item no longer
// exists in the form.
func (f *Form) Item(id int64) *FormItem {
	for i := range f.Items {
		if f.Items[i].ID == id {
			return &f.Items[i]
		}
	}
	return nil
}

// ItemAnswer is one respondent's answer to one item. Response is a string,
// []string (checkbox) or [][]string (grids) depending on the item kind; it
// survives JSON storage as string / []any / [][]any. Score and Feedback are
// set by the host only on graded quiz responses.
type ItemAnswer struct {
	ItemID   int64    `json:"itemId"`
	Response any      `json:"response"`
	Score    *float64 `json:"score,omitempty"`
	Feedback *string  `json:"feedback,omitempty"`
}

// Submission is one respondent's complete set of answers at a point in time.
type Submission struct {
	ID          string       `json:"id"`
	Respondent  string       `json:"respondent"`
	SubmittedAt time.Time    `json:"submittedAt"`
	Answers     []ItemAnswer `json:"answers"`
}

// Answer returns the answer for the given item ID, or nil when the
// respondent skipped the item.
func (s *Submission) Answer(itemID int64) *ItemAnswer {
	for i := range s.Answers {
		if s.Answers[i].ItemID == itemID {
			return &s.Answers[i]
		}
	}
	return nil
}

// Sheet is one tab of a spreadsheet. Values holds the used range row-major,
// starting at A1; Selection is the host-side active range in A1 notation,
// empty when nothing is selected.
type Sheet struct {
	Name      string  `json:"name"`
	Values    [][]any `json:"values"`
	Selection string  `json:"selection,omitempty"`
}

// SheetDocument is a snapshot of a spreadsheet document.
type SheetDocument struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Sheets []Sheet `json:"sheets"`
	// Active is the name of the sheet currently open in the host.
	Active string `json:"active,omitempty"`
}

// Sheet returns the named sheet, or the active sheet when name is empty.
// Returns nil when no sheet matches.
func (d *SheetDocument) Sheet(name string) *Sheet {
	if name == "" {
		name = d.Active
		if name == "" && len(d.Sheets) > 0 {
			return &d.Sheets[0]
		}
	}
	for i := range d.Sheets {
		if d.Sheets[i].Name == name {
			return &d.Sheets[i]
		}
	}
	return nil
}
