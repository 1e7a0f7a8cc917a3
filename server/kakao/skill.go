// Package kakao defines the wire format of the Kakao i Open Builder skill
// protocol: the inbound webhook payload and the response envelope. The shapes
// are dictated by the platform; every reply the server produces goes through
// the constructors here so that no code path can emit a malformed envelope.
package kakao

import (
	"encoding/json"
	"io"
	"strings"
)

// Version is the skill protocol version the platform expects in every response.
const Version = "2.0"

// SkillPayload is the inbound webhook body. Only the fields the responder
// uses are modeled; the platform sends considerably more.
type SkillPayload struct {
	UserRequest UserRequest `json:"userRequest"`
}

// UserRequest carries the end user's utterance and, when the platform allows
// delayed answers, the callback URL for out-of-band delivery.
type UserRequest struct {
	Utterance   string `json:"utterance"`
	CallbackURL string `json:"callbackUrl,omitempty"`
}

// ParsePayload decodes an inbound webhook body. Missing envelope keys are
// never an error: the platform contract requires a well-formed reply even for
// bodies we cannot read, so an unreadable or non-JSON body decodes to an
// empty payload and the caller short-circuits on the empty utterance.
func ParsePayload(r io.Reader) SkillPayload {
	var p SkillPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return SkillPayload{}
	}
	return p
}

// Utterance returns the user's input with surrounding whitespace removed.
func (p SkillPayload) Utterance() string {
	return strings.TrimSpace(p.UserRequest.Utterance)
}

// CallbackURL returns the platform-supplied callback address, or "" when the
// request must be answered synchronously.
func (p SkillPayload) CallbackURL() string {
	return strings.TrimSpace(p.UserRequest.CallbackURL)
}

// SkillResponse is the outbound envelope. Exactly one of Template or
// UseCallback is set, depending on the delivery mode.
type SkillResponse struct {
	Version     string    `json:"version"`
	Template    *Template `json:"template,omitempty"`
	UseCallback bool      `json:"useCallback,omitempty"`
}

// Template wraps the ordered outputs of a skill response.
type Template struct {
	Outputs []Output `json:"outputs"`
}

// Output is a single skill output component.
type Output struct {
	SimpleText SimpleText `json:"simpleText"`
}

// SimpleText is the plain-text output component.
type SimpleText struct {
	Text string `json:"text"`
}

// SimpleTextResponse builds the standard one-text reply envelope.
func SimpleTextResponse(text string) SkillResponse {
	return SkillResponse{
		Version: Version,
		Template: &Template{
			Outputs: []Output{
				{SimpleText: SimpleText{Text: text}},
			},
		},
	}
}

// CallbackWaitResponse builds the acknowledgment envelope that tells the
// platform the real answer will arrive via the callback URL.
func CallbackWaitResponse() SkillResponse {
	return SkillResponse{
		Version:     Version,
		UseCallback: true,
	}
}
