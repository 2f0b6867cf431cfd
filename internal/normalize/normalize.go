// Package normalize turns a raw form submission plus the user's item
// selection into the canonical flat payload delivered to the data platform.
package normalize

import (
	"time"

	"github.com/tablecast/tablecast/internal/catalog"
	"github.com/tablecast/tablecast/internal/document"
	"github.com/tablecast/tablecast/internal/typedata"
)

// Answer is the respondent's answer portion of a record. Score and Feedback
// appear only on graded quiz responses.
type Answer struct {
	Response any      `json:"response"`
	Feedback *string  `json:"feedback,omitempty"`
	Score    *float64 `json:"score,omitempty"`
}

// Record joins one selected item's static schema with the respondent's
// answer. Answer is null when the respondent skipped the item.
type Record struct {
	Title    string              `json:"title"`
	HelpText string              `json:"helpText"`
	ID       int64               `json:"id"`
	Type     document.ItemKind   `json:"type"`
	Answer   *Answer             `json:"answer"`
	TypeData typedata.Descriptor `json:"typeData"`
}

// Payload is the normalized form of one submission: envelope metadata plus
// one record per selected item, in selection order.
type Payload struct {
	Respondent   string   `json:"respondent"`
	Timestamp    string   `json:"timestamp"`
	SubmissionID string   `json:"submissionId"`
	IsQuiz       bool     `json:"isQuiz"`
	Questions    []Record `json:"questions"`
}

// Submission normalizes one submission against the current form snapshot.
// Records follow the selection order regardless of answer order in the raw
// submission. Selected IDs that no longer resolve to a form item are
// dropped; unanswered items get a null answer. Pure in its inputs: same
// form, submission and selection always produce the same payload.
func Submission(form *document.Form, sub *document.Submission, selected []catalog.Item) Payload {
	questions := make([]Record, 0, len(selected))
	for _, sel := range selected {
		item := form.Item(sel.ID)
		if item == nil || item.Kind.Presentational() {
			continue
		}
		questions = append(questions, Record{
			Title:    item.Title,
			HelpText: item.HelpText,
			ID:       item.ID,
			Type:     item.Kind,
			Answer:   answerFor(sub, item.ID, form.IsQuiz),
			TypeData: typedata.Describe(item, form.IsQuiz),
		})
	}

	return Payload{
		Respondent:   sub.Respondent,
		Timestamp:    sub.SubmittedAt.UTC().Format(time.RFC3339),
		SubmissionID: sub.ID,
		IsQuiz:       form.IsQuiz,
		Questions:    questions,
	}
}

func answerFor(sub *document.Submission, itemID int64, isQuiz bool) *Answer {
	raw := sub.Answer(itemID)
	if raw == nil {
		return nil
	}
	a := &Answer{Response: raw.Response}
	if isQuiz {
		a.Score = raw.Score
		a.Feedback = raw.Feedback
	}
	return a
}
