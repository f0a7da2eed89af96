package judge

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SideVerdict carries the judge's scoring of one side
type SideVerdict struct {
	Score int    `json:"score"` // 0-100
	Good  string `json:"good"`  // What the side did well
	Bad   string `json:"bad"`   // What the side did poorly
}

// Verdict is the structured outcome of a debate. Winner holds the raw
// side token from the model; WinnerUserID is filled in once the engine
// maps the token onto an actual player.
type Verdict struct {
	Agree        SideVerdict `json:"agree"`
	Disagree     SideVerdict `json:"disagree"`
	Winner       string      `json:"winner,omitempty"`
	WinnerUserID string      `json:"winnerUserId,omitempty"`
}

// ResolveWinner maps the side token onto a player ID
func (v *Verdict) ResolveWinner(agreeUserID, disagreeUserID string) {
	switch v.Winner {
	case "agree":
		v.WinnerUserID = agreeUserID
	case "disagree":
		v.WinnerUserID = disagreeUserID
	}
}

// parseVerdict decodes the scoring pass output. Models occasionally
// fence the JSON in backticks or prefix it with "json", so both are
// stripped before decoding.
func parseVerdict(raw string) (*Verdict, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.Trim(cleaned, "`")
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "json"))

	var verdict Verdict
	if err := json.Unmarshal([]byte(cleaned), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %v\nraw response: %s", err, raw)
	}

	verdict.Winner = strings.ToLower(strings.TrimSpace(verdict.Winner))
	if verdict.Winner != "agree" && verdict.Winner != "disagree" {
		return nil, fmt.Errorf("invalid winner token %q in verdict", verdict.Winner)
	}

	verdict.Agree.Score = clampScore(verdict.Agree.Score)
	verdict.Disagree.Score = clampScore(verdict.Disagree.Score)

	return &verdict, nil
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
