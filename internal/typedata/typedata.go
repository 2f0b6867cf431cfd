// Package typedata extracts the kind-specific schema descriptor of a form
// item: choice lists, grid layout, scale bounds, and the grading overlay on
// quiz forms. Dispatch is by item kind over a closed set of descriptor
// variants; kinds without structured schema degrade to an empty descriptor
// rather than an error.
package typedata

import (
	"encoding/json"

	"github.com/tablecast/tablecast/internal/document"
)

// Kind tags a descriptor variant.
type Kind string

const (
	KindChoice Kind = "choice"
	KindGrid   Kind = "grid"
	KindScale  Kind = "scale"
	KindNone   Kind = "none"
)

// Option is one choice of a choice-kind item. The correctness flag is
// present only on quiz forms.
type Option struct {
	Value     string `json:"value"`
	IsCorrect *bool  `json:"isCorrectAnswer,omitempty"`
}

// ChoiceGrading is the quiz overlay for choice kinds. Feedback fields are
// explicit nulls when the author configured no feedback text.
type ChoiceGrading struct {
	Points            float64 `json:"points"`
	FeedbackCorrect   *string `json:"feedbackCorrect"`
	FeedbackIncorrect *string `json:"feedbackIncorrect"`
}

// GeneralGrading is the quiz overlay for scalar kinds (text, paragraph,
// date, time, datetime, duration, scale).
type GeneralGrading struct {
	Points   float64 `json:"points"`
	Feedback *string `json:"feedback"`
}

// Descriptor is the tagged type-data variant of one item. Exactly the
// fields of the tagged kind are set; a "none" descriptor has nothing. It
// marshals as a single flat JSON object so every item type shares one
// payload shape.
type Descriptor struct {
	Kind Kind

	Options []Option

	Rows    []string
	Columns []string

	LeftLabel  string
	RightLabel string
	LowerBound int
	UpperBound int

	ChoiceGrading  *ChoiceGrading
	GeneralGrading *GeneralGrading
}

// MarshalJSON flattens the tagged variant into one object. A "none"
// descriptor without grading marshals as {}.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	switch d.Kind {
	case KindChoice:
		opts := d.Options
		if opts == nil {
			opts = []Option{}
		}
		m["choices"] = opts
	case KindGrid:
		m["rows"] = d.Rows
		m["columns"] = d.Columns
	case KindScale:
		m["leftLabel"] = d.LeftLabel
		m["rightLabel"] = d.RightLabel
		m["lowerBound"] = d.LowerBound
		m["upperBound"] = d.UpperBound
	}
	if d.ChoiceGrading != nil {
		m["points"] = d.ChoiceGrading.Points
		m["feedbackCorrect"] = d.ChoiceGrading.FeedbackCorrect
		m["feedbackIncorrect"] = d.ChoiceGrading.FeedbackIncorrect
	}
	if d.GeneralGrading != nil {
		m["points"] = d.GeneralGrading.Points
		m["feedback"] = d.GeneralGrading.Feedback
	}
	return json.Marshal(m)
}

// Describe builds the descriptor for one item. isQuiz attaches the grading
// overlay for scoreable kinds; it must be false for non-quiz documents so
// no grading field ever leaks into their payloads.
func Describe(item *document.FormItem, isQuiz bool) Descriptor {
	switch item.Kind {
	case document.KindMultipleChoice, document.KindCheckbox, document.KindDropdown:
		return describeChoice(item, isQuiz)

	case document.KindGrid, document.KindCheckboxGrid:
		// Grid layout is exposed verbatim and is quiz-independent: grids
		// carry no grading in the host.
		return Descriptor{Kind: KindGrid, Rows: item.Rows, Columns: item.Columns}

	case document.KindScale:
		d := Descriptor{
			Kind:       KindScale,
			LeftLabel:  item.LeftLabel,
			RightLabel: item.RightLabel,
			LowerBound: item.LowerBound,
			UpperBound: item.UpperBound,
		}
		if isQuiz {
			d.GeneralGrading = generalGrading(item)
		}
		return d

	case document.KindText, document.KindParagraph, document.KindDate,
		document.KindTime, document.KindDateTime, document.KindDuration:
		d := Descriptor{Kind: KindNone}
		if isQuiz {
			d.GeneralGrading = generalGrading(item)
		}
		return d
	}

	// Unmapped kinds have no structured schema.
	return Descriptor{Kind: KindNone}
}

func describeChoice(item *document.FormItem, isQuiz bool) Descriptor {
	opts := make([]Option, len(item.Choices))
	for i, c := range item.Choices {
		opts[i] = Option{Value: c.Value}
		if isQuiz {
			correct := c.IsCorrect
			opts[i].IsCorrect = &correct
		}
	}
	d := Descriptor{Kind: KindChoice, Options: opts}
	if isQuiz {
		d.ChoiceGrading = &ChoiceGrading{
			Points:            item.Points,
			FeedbackCorrect:   item.FeedbackCorrect,
			FeedbackIncorrect: item.FeedbackIncorrect,
		}
	}
	return d
}

func generalGrading(item *document.FormItem) *GeneralGrading {
	return &GeneralGrading{Points: item.Points, Feedback: item.Feedback}
}
