// Package judge evaluates finished debates with an LLM. Evaluation is
// two passes: a structured scoring pass that must return strict JSON,
// then a narration pass that turns the verdict into Korean prose for
// the room.
package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	langopenai "github.com/tmc/langchaingo/llms/openai"
)

const defaultModel = "gpt-4o-mini"

// Entry is a single speech in the debate transcript
type Entry struct {
	Side    string `json:"side"` // "agree" or "disagree"
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Input is everything the judge needs to evaluate a debate
type Input struct {
	SubjectTitle string
	SubjectBody  string
	AgreeName    string
	DisagreeName string
	Transcript   []Entry
}

// Judge evaluates debates via OpenAI
type Judge struct {
	llm   llms.LLM
	chat  *openai.Client
	model string
}

// New creates a Judge. Both passes use the same API key and model.
func New(apiKey string) (*Judge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	llm, err := langopenai.New(
		langopenai.WithToken(apiKey),
		langopenai.WithModel(defaultModel),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge LLM: %v", err)
	}

	return &Judge{
		llm:   llm,
		chat:  openai.NewClient(apiKey),
		model: defaultModel,
	}, nil
}

// Evaluate runs both judge passes and returns the structured verdict
// together with the narration paragraph. Any failure on either pass
// fails the whole evaluation; a debate is never scored from a partial
// judge response.
func (j *Judge) Evaluate(ctx context.Context, input Input) (*Verdict, string, error) {
	verdict, err := j.score(ctx, input)
	if err != nil {
		return nil, "", err
	}

	narration, err := j.narrate(ctx, input, verdict)
	if err != nil {
		return nil, "", err
	}

	return verdict, narration, nil
}

func (j *Judge) score(ctx context.Context, input Input) (*Verdict, error) {
	prompt := buildScorePrompt(input)

	completion, err := j.llm.Call(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("scoring pass failed: %v", err)
	}
	if strings.TrimSpace(completion) == "" {
		return nil, fmt.Errorf("scoring pass returned empty response")
	}

	return parseVerdict(completion)
}

func (j *Judge) narrate(ctx context.Context, input Input, verdict *Verdict) (string, error) {
	winnerName := input.AgreeName
	if verdict.Winner == "disagree" {
		winnerName = input.DisagreeName
	}

	systemPrompt := `You are the head judge of a formal Korean debate competition.
You announce verdicts to the audience in Korean: respectful, vivid and specific.
Write a single paragraph of Korean prose. Name both debaters, praise each side's
strongest moment, point out the decisive weakness, and declare the winner.
Do not use lists, headings or JSON. Korean prose only.`

	userPrompt := fmt.Sprintf(
		"Subject: %s\nAgree side (찬성): %s (score %d)\nDisagree side (반대): %s (score %d)\nWinner: %s\n\nAgree strengths: %s\nAgree weaknesses: %s\nDisagree strengths: %s\nDisagree weaknesses: %s\n\nAnnounce this verdict.",
		input.SubjectTitle,
		input.AgreeName, verdict.Agree.Score,
		input.DisagreeName, verdict.Disagree.Score,
		winnerName,
		verdict.Agree.Good, verdict.Agree.Bad,
		verdict.Disagree.Good, verdict.Disagree.Bad,
	)

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: userPrompt,
		},
	}

	resp, err := j.chat.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       j.model,
			Messages:    messages,
			Temperature: 0.6,
		},
	)
	if err != nil {
		return "", fmt.Errorf("narration pass failed: %v", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("narration pass returned empty response")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildScorePrompt renders the transcript and demands strict JSON back
func buildScorePrompt(input Input) string {
	var transcript strings.Builder
	for _, entry := range input.Transcript {
		label := "찬성"
		if entry.Side == "disagree" {
			label = "반대"
		}
		transcript.WriteString(fmt.Sprintf("[%s] %s: %s\n", label, entry.Speaker, entry.Text))
	}

	return fmt.Sprintf(`You are judging a structured Korean debate on the subject "%s".
%s

The agree side (찬성) is %s. The disagree side (반대) is %s.

Transcript:
%s
Judge both sides on argument quality, evidence, rebuttal and delivery.
Score each side from 0 to 100 and pick the winner.

Your response MUST ONLY be a valid JSON object with the following structure. Dont write the word json, just output a correct json-formatted object, starting with a { symbol
{
    "agree": {"score": <0-100>, "good": "<what the agree side did well, in Korean>", "bad": "<what the agree side did poorly, in Korean>"},
    "disagree": {"score": <0-100>, "good": "<what the disagree side did well, in Korean>", "bad": "<what the disagree side did poorly, in Korean>"},
    "winner": "<agree or disagree>"
}`,
		input.SubjectTitle,
		input.SubjectBody,
		input.AgreeName,
		input.DisagreeName,
		transcript.String(),
	)
}
