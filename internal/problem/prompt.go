package problem

import (
	"fmt"
	"strconv"
	"strings"

	"math-problem-service/internal/domain"
)

const problemSystem = "You write math word problems for Primary 5 students (ages 10-11). You always answer with a single JSON object and nothing else."

const feedbackSystem = "You are a supportive math tutor for Primary 5 students (ages 10-11)."

var difficultyGuide = map[domain.Difficulty]string{
	domain.DifficultyEasy:   "Use small numbers (1-50) and simple single-step operations.",
	domain.DifficultyMedium: "Use moderate numbers (1-100) and may include two-step operations.",
	domain.DifficultyHard:   "Use larger numbers (1-500) and multi-step operations with different operations combined.",
}

var topicGuide = map[domain.Topic]string{
	domain.TopicAddition:       "Focus only on addition problems (adding 2 or more numbers).",
	domain.TopicSubtraction:    "Focus only on subtraction problems (subtracting numbers).",
	domain.TopicMultiplication: "Focus only on multiplication problems (multiplying numbers).",
	domain.TopicDivision:       "Focus only on division problems (dividing numbers, ensure whole number answers).",
	domain.TopicMixed:          "Use any combination of addition, subtraction, multiplication, or division.",
}

func problemPrompt(difficulty domain.Difficulty, topic domain.Topic) (string, error) {
	dg, ok := difficultyGuide[difficulty]
	if !ok {
		return "", fmt.Errorf("%w: unknown difficulty %q", domain.ErrInvalidInput, difficulty)
	}
	tg, ok := topicGuide[topic]
	if !ok {
		return "", fmt.Errorf("%w: unknown topic %q", domain.ErrInvalidInput, topic)
	}

	var b strings.Builder
	b.WriteString("Generate a math word problem suitable for Primary 5 students (ages 10-11).\n\n")
	fmt.Fprintf(&b, "DIFFICULTY: %s\n%s\n\n", strings.ToUpper(string(difficulty)), dg)
	fmt.Fprintf(&b, "PROBLEM TYPE: %s\n%s\n\n", strings.ToUpper(string(topic)), tg)
	b.WriteString("The problem should be relatable to everyday situations.\n\n")
	b.WriteString("Return ONLY a JSON object in this exact format (no markdown, no code blocks):\n")
	b.WriteString(`{
  "problem_text": "A detailed word problem here...",
  "final_answer": 42,
  "hint": "A helpful hint without giving away the answer",
  "solution_steps": "Step 1: ...\nStep 2: ...\nStep 3: Final answer is ..."
}`)
	b.WriteString("\n\nMake sure the final_answer is a number (integer or decimal).")
	return b.String(), nil
}

func feedbackPrompt(in FeedbackInput) string {
	result := "INCORRECT"
	if in.IsCorrect {
		result = "CORRECT"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Problem: %s\n", in.ProblemText)
	fmt.Fprintf(&b, "Correct Answer: %s\n", formatNumber(in.CorrectAnswer))
	fmt.Fprintf(&b, "Student's Answer: %s\n", formatNumber(in.UserAnswer))
	fmt.Fprintf(&b, "Result: %s\n\n", result)
	b.WriteString("Generate personalized, encouraging feedback for the student.\n\n")
	if in.IsCorrect {
		b.WriteString("- Congratulate them warmly\n")
		b.WriteString("- Explain why their answer is correct\n")
		b.WriteString("- Optionally mention the strategy or concept they used well\n")
	} else {
		b.WriteString("- Be gentle and encouraging\n")
		b.WriteString("- Explain where they might have gone wrong\n")
		b.WriteString("- Guide them toward the correct approach without being condescending\n")
		b.WriteString("- Show the correct answer and explain why it's correct\n")
	}
	b.WriteString("\nKeep the feedback conversational, age-appropriate, and under 4 sentences. Reply with the feedback text only.")
	return b.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
