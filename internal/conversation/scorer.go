package conversation

import (
	"regexp"
	"strings"

	"github.com/ashureev/leadflow/internal/domain"
)

const maxScore = 100

var (
	contactPhonePattern = regexp.MustCompile(`\d{10,11}`)
	contactEmailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.]+`)
	priorityAreaWords   = []string{"penal", "criminal", "saude", "saúde", "plano"}
)

// Score computes the lead qualification score (0..100) from the collected
// answers. Missing answers simply contribute nothing.
func Score(answers domain.Answers) int {
	score := 0

	name := strings.TrimSpace(answers[domain.AnswerName])
	if len([]rune(name)) >= 3 {
		score += 5
	}
	if len(strings.Fields(name)) >= 2 {
		score += 5
	}

	contact := strings.TrimSpace(answers[domain.AnswerContactReason])
	if contact != "" {
		score += 5
		if contactPhonePattern.MatchString(contact) || contactEmailPattern.MatchString(contact) {
			score += 5
		}
	}

	area := strings.ToLower(strings.TrimSpace(answers[domain.AnswerLegalArea]))
	if area != "" {
		score += 20
		for _, w := range priorityAreaWords {
			if strings.Contains(area, w) {
				score += 15
				break
			}
		}
	}

	details := []rune(strings.TrimSpace(answers[domain.AnswerDetails]))
	if len(details) > 0 {
		score += 15
	}
	if len(details) >= 20 {
		score += 15
	}
	if len(details) >= 50 {
		score += 15
	}

	return min(score, maxScore)
}
