package domain

import (
	"testing"
	"time"
)

func TestStepNextFollowsFlow(t *testing.T) {
	t.Parallel()

	steps := Flow()
	for i := 0; i < len(steps)-1; i++ {
		if got := steps[i].Next(); got != steps[i+1] {
			t.Fatalf("%s.Next() = %s, want %s", steps[i], got, steps[i+1])
		}
	}
	if got := StepDone.Next(); got != StepDone {
		t.Fatalf("DONE.Next() = %s, want DONE", got)
	}
	if Step("BOGUS").Valid() {
		t.Fatal("unknown step reported valid")
	}
}

func TestAnswerKeyOnlyForQuestionSteps(t *testing.T) {
	t.Parallel()

	for _, s := range []Step{StepGreeting, StepAwaitingPhone, StepDone} {
		if _, ok := s.AnswerKey(); ok {
			t.Fatalf("%s should not collect an answer", s)
		}
	}
	if k, ok := StepAskLegalArea.AnswerKey(); !ok || k != AnswerLegalArea {
		t.Fatalf("ASK_LEGAL_AREA key = %q, %v", k, ok)
	}
}

func TestAnswersComplete(t *testing.T) {
	t.Parallel()

	a := Answers{AnswerName: "Maria Silva", AnswerContactReason: "x", AnswerLegalArea: "penal"}
	if a.Complete() {
		t.Fatal("expected incomplete answers")
	}
	a[AnswerDetails] = "   "
	if a.Complete() {
		t.Fatal("blank details must not count")
	}
	a[AnswerDetails] = "detalhes"
	if !a.Complete() {
		t.Fatal("expected complete answers")
	}
	if a.FirstName() != "Maria" {
		t.Fatalf("FirstName = %q", a.FirstName())
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	s := NewSession("abc", time.Now())
	score := 40
	s.Score = &score
	s.Answers[AnswerName] = "Maria"

	c := s.Clone()
	c.Answers[AnswerName] = "Joana"
	*c.Score = 90
	c.FollowUps = append(c.FollowUps, "oi")

	if s.Answers[AnswerName] != "Maria" || *s.Score != 40 || len(s.FollowUps) != 0 {
		t.Fatal("clone shares state with original")
	}
}
