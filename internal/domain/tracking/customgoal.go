package tracking

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/welltrack/welltrack/internal/platform/dates"
)

// AddCustomGoal creates a patient-authored item under the reserved
// Custom category, with a fresh code, its ad hoc question set, and
// default options (Yes/No for boolean questions). The item, question,
// option, and entry writes commit together.
func (s *Service) AddCustomGoal(ctx context.Context, patientID, userID uuid.UUID, in *CustomGoalInput) (*TrackItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	freq := in.Frequency
	if freq == "" {
		freq = dates.Daily
	}
	if _, err := dates.ParseFrequency(string(freq)); err != nil {
		return nil, err
	}
	category, err := s.categories.GetByName(ctx, CustomCategoryName)
	if err != nil {
		return nil, fmt.Errorf("custom category not found: %w", err)
	}

	item := &TrackItem{
		CategoryID: category.ID,
		Code:       newCode("ti"),
		Name:       name,
		Frequency:  freq,
		Status:     StatusActive,
	}
	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.items.Create(ctx, item); err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		for i, qin := range in.Questions {
			if _, err := s.createCustomQuestion(ctx, item.ID, qin, i); err != nil {
				return err
			}
		}
		// The author is subscribed from day one: materialize the
		// creation date's bucket entry.
		_, err := s.LinkItem(ctx, item.ID, patientID, userID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// EditCustomGoal applies a partial update: the name change is
// independent of question updates, and each question input either
// mutates an existing question by id or inserts a new one. Untouched
// fields keep their current values. The whole update commits together,
// so an option replacement never strands a question between its old and
// new option sets.
func (s *Service) EditCustomGoal(ctx context.Context, itemID uuid.UUID, in *CustomGoalInput) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("item not found: %w", err)
	}
	return s.tx(ctx, func(ctx context.Context) error {
		return s.editCustomGoal(ctx, item, in)
	})
}

func (s *Service) editCustomGoal(ctx context.Context, item *TrackItem, in *CustomGoalInput) error {
	if name := strings.TrimSpace(in.Name); name != "" && name != item.Name {
		item.Name = name
		if err := s.items.Update(ctx, item); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
	}

	existing, err := s.questions.ListActiveByItem(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	nextOrder := len(existing)

	for _, qin := range in.Questions {
		if qin.ID == nil {
			if _, err := s.createCustomQuestion(ctx, item.ID, qin, nextOrder); err != nil {
				return err
			}
			nextOrder++
			continue
		}
		q, err := s.questions.GetByID(ctx, *qin.ID)
		if err != nil {
			return fmt.Errorf("question not found: %w", err)
		}
		if text := strings.TrimSpace(qin.Text); text != "" {
			q.Text = text
		}
		if qin.SummaryTemplate != nil {
			q.SummaryTemplate = qin.SummaryTemplate
		}
		if err := s.questions.Update(ctx, q); err != nil {
			return fmt.Errorf("update question: %w", err)
		}
		if qin.Options != nil {
			// Wholesale replacement: retire the old set, then recreate.
			if err := s.options.DeactivateByQuestion(ctx, q.ID); err != nil {
				return fmt.Errorf("deactivate options: %w", err)
			}
			if err := s.createOptions(ctx, q.ID, q.Type, qin.Options); err != nil {
				return err
			}
		}
	}
	return nil
}

// RemoveCustomGoal soft-deactivates the item and deselects all of the
// patient's entries for it. Nothing is deleted; historical answers stay
// queryable.
func (s *Service) RemoveCustomGoal(ctx context.Context, itemID, patientID uuid.UUID) error {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return fmt.Errorf("item not found: %w", err)
	}
	return s.tx(ctx, func(ctx context.Context) error {
		item.Status = StatusInactive
		if err := s.items.Update(ctx, item); err != nil {
			return fmt.Errorf("deactivate item: %w", err)
		}
		if err := s.entries.DeselectAll(ctx, item.ID, patientID); err != nil {
			return fmt.Errorf("deselect entries: %w", err)
		}
		return nil
	})
}

func (s *Service) createCustomQuestion(ctx context.Context, itemID uuid.UUID, in CustomQuestionInput, sortOrder int) (*Question, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("question text is required")
	}
	qtype := in.Type
	if qtype == "" {
		qtype = TypeBoolean
	}
	q := &Question{
		TrackItemID:     itemID,
		Code:            newCode("q"),
		Text:            text,
		Type:            qtype,
		SummaryTemplate: in.SummaryTemplate,
		Status:          StatusActive,
		SortOrder:       sortOrder,
	}
	if err := s.questions.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	if err := s.createOptions(ctx, q.ID, qtype, in.Options); err != nil {
		return nil, err
	}
	return q, nil
}

// createOptions builds a question's option set: a fixed Yes/No pair for
// boolean questions, one option per non-blank supplied string for
// mcq/msq, nothing otherwise.
func (s *Service) createOptions(ctx context.Context, questionID uuid.UUID, qtype string, supplied []string) error {
	var texts []string
	switch qtype {
	case TypeBoolean:
		texts = []string{"Yes", "No"}
	case TypeMCQ, TypeMSQ:
		for _, t := range supplied {
			if t = strings.TrimSpace(t); t != "" {
				texts = append(texts, t)
			}
		}
	default:
		return nil
	}
	for i, text := range texts {
		opt := &ResponseOption{
			QuestionID: questionID,
			Code:       newCode("o"),
			Text:       text,
			Status:     StatusActive,
			SortOrder:  i,
		}
		if err := s.options.Create(ctx, opt); err != nil {
			return fmt.Errorf("create option: %w", err)
		}
	}
	return nil
}
