package flow

import (
	"context"
	"strings"

	"consorcio_bot/internal/core"
)

// Reply texts for the fixed points of the flow.
const (
	completionMessage = "Perfeito, obrigado! 🎉 Recebi todas as suas informações. " +
		"Um de nossos especialistas em consórcio vai entrar em contato em breve com a sua simulação."
	alreadyCompleteMessage = "Suas informações já foram registradas. " +
		"Um especialista vai falar com você em breve. Se quiser atualizar algum dado, é só avisar!"
)

// Processor walks the qualification question flow: each turn records the
// answer to the current question on the snapshot and asks the next one.
// It implements core.Processor deterministically, with no model calls.
type Processor struct {
	questions *QuestionSet
}

// NewProcessor creates a flow processor over a loaded question set.
func NewProcessor(questions *QuestionSet) *Processor {
	return &Processor{questions: questions}
}

// Process advances the conversation one turn, mutating the snapshot in
// place, and returns the reply to send.
func (p *Processor) Process(ctx context.Context, snap *core.SessionSnapshot, message string) (string, error) {
	if snap.IsComplete {
		return alreadyCompleteMessage, nil
	}

	if snap.ConversationStage == core.StageStart || snap.CurrentQuestionID == "" {
		return p.begin(snap), nil
	}

	// Record the answer to the question currently on the table.
	answer := strings.TrimSpace(message)
	if answer != "" {
		snap.SetLeadField(p.questions.FieldID(snap.CurrentQuestionID), answer)
	}

	if p.questions.IsLast(snap.CurrentQuestionID) {
		snap.CurrentQuestionID = ""
		snap.CurrentQuestionText = ""
		snap.NextQuestionID = ""
		snap.NextQuestionText = ""
		snap.ConversationStage = core.StageCompleted
		snap.IsComplete = true
		return completionMessage, nil
	}

	nextText, nextID := p.questions.NextQuestion(snap.CurrentQuestionID)
	snap.CurrentQuestionID = nextID
	snap.CurrentQuestionText = nextText
	p.setLookahead(snap, nextID)
	return nextText, nil
}

// begin opens the flow with the first question.
func (p *Processor) begin(snap *core.SessionSnapshot) string {
	startID := p.questions.Start
	snap.ConversationStage = core.StageQualifying
	snap.CurrentQuestionID = startID
	snap.CurrentQuestionText = p.questions.Get(startID)
	p.setLookahead(snap, startID)
	return snap.CurrentQuestionText
}

func (p *Processor) setLookahead(snap *core.SessionSnapshot, id string) {
	nextText, nextID := p.questions.NextQuestion(id)
	snap.NextQuestionID = nextID
	snap.NextQuestionText = nextText
}
