package judge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, v *Verdict)
	}{
		{
			name: "plain json",
			raw:  `{"agree":{"score":72,"good":"근거 제시","bad":"반박 부족"},"disagree":{"score":65,"good":"논리 전개","bad":"자료 부족"},"winner":"agree"}`,
			check: func(t *testing.T, v *Verdict) {
				assert.Equal(t, 72, v.Agree.Score)
				assert.Equal(t, 65, v.Disagree.Score)
				assert.Equal(t, "agree", v.Winner)
			},
		},
		{
			name: "fenced in backticks",
			raw:  "```json\n{\"agree\":{\"score\":40,\"good\":\"\",\"bad\":\"\"},\"disagree\":{\"score\":80,\"good\":\"\",\"bad\":\"\"},\"winner\":\"disagree\"}\n```",
			check: func(t *testing.T, v *Verdict) {
				assert.Equal(t, "disagree", v.Winner)
				assert.Equal(t, 80, v.Disagree.Score)
			},
		},
		{
			name: "winner token case and spacing",
			raw:  `{"agree":{"score":50},"disagree":{"score":50},"winner":" Agree "}`,
			check: func(t *testing.T, v *Verdict) {
				assert.Equal(t, "agree", v.Winner)
			},
		},
		{
			name: "out of range scores are clamped",
			raw:  `{"agree":{"score":140},"disagree":{"score":-3},"winner":"agree"}`,
			check: func(t *testing.T, v *Verdict) {
				assert.Equal(t, 100, v.Agree.Score)
				assert.Equal(t, 0, v.Disagree.Score)
			},
		},
		{
			name:    "not json",
			raw:     "the agree side wins!",
			wantErr: true,
		},
		{
			name:    "invalid winner token",
			raw:     `{"agree":{"score":60},"disagree":{"score":50},"winner":"alice"}`,
			wantErr: true,
		},
		{
			name:    "missing winner",
			raw:     `{"agree":{"score":60},"disagree":{"score":50}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := parseVerdict(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, verdict)
		})
	}
}

func TestResolveWinner(t *testing.T) {
	v := &Verdict{Winner: "agree"}
	v.ResolveWinner("alice", "bob")
	assert.Equal(t, "alice", v.WinnerUserID)

	v = &Verdict{Winner: "disagree"}
	v.ResolveWinner("alice", "bob")
	assert.Equal(t, "bob", v.WinnerUserID)
}

func TestBuildScorePrompt(t *testing.T) {
	input := Input{
		SubjectTitle: "동물원을 폐지해야 한다",
		SubjectBody:  "동물 복지를 중심으로 논증하세요.",
		AgreeName:    "Alice",
		DisagreeName: "Bob",
		Transcript: []Entry{
			{Side: "agree", Speaker: "Alice", Text: "동물원은 동물의 본성을 억압합니다."},
			{Side: "disagree", Speaker: "Bob", Text: "동물원은 멸종 위기종을 보전합니다."},
		},
	}

	prompt := buildScorePrompt(input)

	assert.Contains(t, prompt, input.SubjectTitle)
	assert.Contains(t, prompt, "Alice")
	assert.Contains(t, prompt, "Bob")
	assert.Contains(t, prompt, "[찬성] Alice:")
	assert.Contains(t, prompt, "[반대] Bob:")
	assert.Contains(t, prompt, `"winner"`)
	// Transcript order preserved
	assert.Less(t, strings.Index(prompt, "본성을 억압"), strings.Index(prompt, "멸종 위기종"))
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
