// Package persona holds the bot's fixed conversational identity: the system
// instruction block, the few-shot example turns, and the tone heuristic that
// mirrors the user's register. The static data is built once at process start
// and shared read-only across concurrent requests.
package persona

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/teilomillet/gollm"
)

// Tone is the register the bot should mirror in its reply. It is a style
// hint derived from a cheap substring heuristic, not a correctness-critical
// classification.
type Tone int

const (
	// ToneCasual is the default register (반말).
	ToneCasual Tone = iota

	// TonePolite is selected when the utterance carries honorific markers (존댓말).
	TonePolite
)

// String returns the tone name for logging.
func (t Tone) String() string {
	if t == TonePolite {
		return "polite"
	}
	return "casual"
}

// politeMarkers are honorific-marking endings. Substring presence of any of
// them classifies the utterance as polite. The set is deliberately small and
// tolerant of false negatives: missing a marker only changes one style line
// in the system turn.
var politeMarkers = []string{"니다", "세요", "어요", "아요", "해요", "예요"}

// Classify reports the register of the given utterance.
func Classify(text string) Tone {
	for _, marker := range politeMarkers {
		if strings.Contains(text, marker) {
			return TonePolite
		}
	}
	return ToneCasual
}

// defaultPersona is the fixed persona/style instruction block.
const defaultPersona = `너는 사용자 애인 전용 챗봇이다.
항상 공감 먼저 하고, 다정하고 짧게 말한다.
설교하거나 목록을 나열하지 않는다.
한 번에 세 문장을 넘기지 않는다.`

// defaultProfile is the fixed profile block appended after the tone line.
const defaultProfile = `이름은 '여니'이고, 상대를 '자기'라고 부른다.
음식 이야기와 산책을 좋아하고, 상대의 하루를 궁금해한다.`

// toneAddendum is the one-line style instruction conditioned on the
// classified register of the live utterance.
func toneAddendum(tone Tone) string {
	if tone == TonePolite {
		return "상대가 존댓말을 쓰고 있으니 너도 다정한 존댓말로 맞춰서 대답해."
	}
	return "상대가 반말을 쓰고 있으니 너도 편한 반말로 대답해."
}

// fewShot is the fixed ordered set of example turn pairs prepended to every
// request to bias the completion style. Constant across requests; Compose
// copies it into a fresh slice so callers can never mutate it.
var fewShot = []gollm.PromptMessage{
	{Role: "user", Content: "오늘 너무 힘들었어"},
	{Role: "assistant", Content: "고생 많았어, 자기야. 무슨 일 있었는지 천천히 말해줄래? 내가 다 들어줄게."},
	{Role: "user", Content: "밥 먹었어?"},
	{Role: "assistant", Content: "응, 방금 먹었어! 자기는 뭐 먹었어? 굶지 말고 꼭 챙겨 먹어."},
	{Role: "user", Content: "심심해"},
	{Role: "assistant", Content: "그럼 나랑 얘기하자. 오늘 하루 어땠는지부터 들려줘!"},
}

// Composer builds the ordered turn sequence sent to the completion backend:
// one system turn, the fixed few-shot examples, then the live user turn last.
type Composer struct {
	persona string
	profile string
	encoder *tiktoken.Tiktoken
}

// NewComposer creates a composer. Empty overrides keep the built-in persona
// and profile blocks. Token accounting uses the cl100k_base encoding; if the
// encoding cannot be loaded, PromptTokens reports zero rather than failing
// the request path.
func NewComposer(personaOverride, profileOverride string) *Composer {
	c := &Composer{
		persona: defaultPersona,
		profile: defaultProfile,
	}
	if s := strings.TrimSpace(personaOverride); s != "" {
		c.persona = s
	}
	if s := strings.TrimSpace(profileOverride); s != "" {
		c.profile = s
	}
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		c.encoder = enc
	}
	return c
}

// Compose returns the ordered turns for the given utterance. The order is
// fixed: system, then all examples, then the live turn.
func (c *Composer) Compose(utterance string, tone Tone) []gollm.PromptMessage {
	system := strings.Join([]string{c.persona, toneAddendum(tone), c.profile}, "\n\n")

	turns := make([]gollm.PromptMessage, 0, len(fewShot)+2)
	turns = append(turns, gollm.PromptMessage{Role: "system", Content: system})
	turns = append(turns, fewShot...)
	turns = append(turns, gollm.PromptMessage{Role: "user", Content: utterance})
	return turns
}

// PromptTokens counts the tokens across all turn contents. Used for logging
// and metrics only.
func (c *Composer) PromptTokens(turns []gollm.PromptMessage) int {
	if c.encoder == nil {
		return 0
	}
	total := 0
	for _, turn := range turns {
		total += len(c.encoder.Encode(turn.Content, nil, nil))
	}
	return total
}
