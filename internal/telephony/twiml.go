package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
	"time"

	"survey-dialer/internal/callflow"
)

// GatherOptions configures the speech gather emitted for listening directives.
type GatherOptions struct {
	// Action is where Twilio posts the speech result, normally PUBLIC_URL/gather.
	Action        string
	Timeout       int
	SpeechTimeout string
	Language      string
	Voice         string

	// NoInput is spoken if the gather falls through without posting to Action.
	NoInput string
}

func DefaultGatherOptions() GatherOptions {
	return GatherOptions{
		Action:        "/gather",
		Timeout:       8,
		SpeechTimeout: "auto",
		NoInput:       "I did not hear anything. I will end this call now. Thank you for your time. Goodbye.",
	}
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlGather struct {
	XMLName             xml.Name  `xml:"Gather"`
	Input               string    `xml:"input,attr"`
	Action              string    `xml:"action,attr,omitempty"`
	Method              string    `xml:"method,attr,omitempty"`
	Timeout             int       `xml:"timeout,attr,omitempty"`
	SpeechTimeout       string    `xml:"speechTimeout,attr,omitempty"`
	Language            string    `xml:"language,attr,omitempty"`
	ActionOnEmptyResult bool      `xml:"actionOnEmptyResult,attr,omitempty"`
	Say                 *twimlSay `xml:"Say,omitempty"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// RenderTwiML maps a call flow directive to a TwiML document.
//
// Listening directives wrap the prompt in a speech Gather that always posts back,
// even on silence, so the call flow owns the retry decision.
func RenderTwiML(d callflow.Directive, opts GatherOptions) (string, error) {
	say := strings.TrimSpace(d.Say)
	if say == "" {
		return "", errors.New("telephony: directive has nothing to say")
	}

	var r twimlResponse
	if d.Pause > 0 {
		r.Verbs = append(r.Verbs, twimlPause{Length: pauseSeconds(d.Pause)})
	}

	prompt := &twimlSay{Voice: opts.Voice, Language: opts.Language, Text: say}
	if d.Listen {
		if strings.TrimSpace(opts.Action) == "" {
			return "", errors.New("telephony: gather action required for listening directive")
		}
		r.Verbs = append(r.Verbs, twimlGather{
			Input:               "speech",
			Action:              opts.Action,
			Method:              "POST",
			Timeout:             opts.Timeout,
			SpeechTimeout:       opts.SpeechTimeout,
			Language:            opts.Language,
			ActionOnEmptyResult: true,
			Say:                 prompt,
		})
		if opts.NoInput != "" {
			r.Verbs = append(r.Verbs, twimlSay{Voice: opts.Voice, Language: opts.Language, Text: opts.NoInput})
		}
	} else {
		r.Verbs = append(r.Verbs, *prompt)
	}
	r.Verbs = append(r.Verbs, twimlHangup{})

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func pauseSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
