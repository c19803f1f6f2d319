package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Question is one step of the qualification flow: the text asked, the lead
// field its answer fills and the id of the following step ("end" closes
// the flow).
type Question struct {
	FieldID  string `yaml:"id"`
	Question string `yaml:"question"`
	Next     string `yaml:"next"`
}

// QuestionSet is the qualification question graph loaded from YAML.
type QuestionSet struct {
	Start     string              `yaml:"start"`
	Questions map[string]Question `yaml:"questions"`
}

// LoadQuestions reads and validates the question flow definition.
func LoadQuestions(filepath string) (*QuestionSet, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("error reading questions file: %w", err)
	}

	var set QuestionSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("error parsing questions YAML: %w", err)
	}

	if set.Start == "" {
		return nil, fmt.Errorf("questions file has no start question")
	}
	if _, ok := set.Questions[set.Start]; !ok {
		return nil, fmt.Errorf("start question %q is not defined", set.Start)
	}
	for id, q := range set.Questions {
		if q.Next != "end" {
			if _, ok := set.Questions[q.Next]; !ok {
				return nil, fmt.Errorf("question %q points to undefined next %q", id, q.Next)
			}
		}
	}
	return &set, nil
}

// Get returns the question text for an id, or "" when unknown.
func (s *QuestionSet) Get(id string) string {
	return s.Questions[id].Question
}

// FieldID returns the lead field an answer to the question fills.
func (s *QuestionSet) FieldID(id string) string {
	return s.Questions[id].FieldID
}

// NextQuestion returns the following question's text and id, or ("", "")
// when the flow ends after id.
func (s *QuestionSet) NextQuestion(id string) (string, string) {
	q, ok := s.Questions[id]
	if !ok {
		return "", ""
	}
	next, ok := s.Questions[q.Next]
	if q.Next == "end" || !ok {
		return "", ""
	}
	return next.Question, q.Next
}

// IsLast reports whether the flow ends after the question.
func (s *QuestionSet) IsLast(id string) bool {
	q, ok := s.Questions[id]
	if !ok {
		return true
	}
	return q.Next == "end"
}
