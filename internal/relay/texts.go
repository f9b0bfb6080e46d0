package relay

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"relaybot/pkg/tgui"
)

// Texts are every user- and owner-facing string the router sends. Empty
// fields fall back to DefaultTexts.
type Texts struct {
	Welcome        string `json:"welcome"` // "%s" is the sender's first name
	Ack            string `json:"ack"`
	ForwardTitle   string `json:"forward_title"`
	SendallEmpty   string `json:"sendall_empty"`
	AskImage       string `json:"ask_image"`
	SendImage      string `json:"send_image"`
	NothingPending string `json:"nothing_pending"`
	InvalidFormat  string `json:"invalid_format"`
	ExportCaption  string `json:"export_caption"`
	ExportDone     string `json:"export_done"`
	Failed         string `json:"failed"` // "%v" is the error
	Yes            string `json:"yes"`
	No             string `json:"no"`
}

func DefaultTexts() Texts {
	return Texts{
		Welcome: "👋 Hi, %s! 👋\n\n" +
			"🤖 This Automated Bot is here to assist you! 🤖\n" +
			"Your messages will be forwarded to the Owner. 📬\n" +
			"Feel free to start chatting! 💬",
		Ack:            "📤 Your message has been sent to the Owner.",
		ForwardTitle:   "📨 New message",
		SendallEmpty:   "❗ Please provide a message to broadcast.",
		AskImage:       "Do you want to send an image with the broadcast message?",
		SendImage:      "Please send the image you want to include with the broadcast message.",
		NothingPending: "No broadcast message found to send.",
		InvalidFormat:  "❗ Please provide a valid user ID and reply message in the correct format.",
		ExportCaption:  "Here is the exported data.",
		ExportDone:     "✅ Data export completed and sent.",
		Failed:         "❌ An error occurred: %v",
		Yes:            "Yes",
		No:             "No",
	}
}

// WithDefaults fills empty fields from DefaultTexts.
func (t Texts) WithDefaults() Texts {
	d := DefaultTexts()
	pick := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	pick(&t.Welcome, d.Welcome)
	pick(&t.Ack, d.Ack)
	pick(&t.ForwardTitle, d.ForwardTitle)
	pick(&t.SendallEmpty, d.SendallEmpty)
	pick(&t.AskImage, d.AskImage)
	pick(&t.SendImage, d.SendImage)
	pick(&t.NothingPending, d.NothingPending)
	pick(&t.InvalidFormat, d.InvalidFormat)
	pick(&t.ExportCaption, d.ExportCaption)
	pick(&t.ExportDone, d.ExportDone)
	pick(&t.Failed, d.Failed)
	pick(&t.Yes, d.Yes)
	pick(&t.No, d.No)
	return t
}

const (
	namePlaceholder  = "%s"
	errorPlaceholder = "%v"
)

// Greeting renders Welcome for firstName. The placeholder is optional.
func (t Texts) Greeting(firstName string) string {
	return strings.Replace(t.Welcome, namePlaceholder, string(tgui.Esc(firstName)), 1)
}

// Failure renders Failed for err. The placeholder is optional.
func (t Texts) Failure(err error) string {
	return strings.Replace(t.Failed, errorPlaceholder, err.Error(), 1)
}

var (
	// Entities and tags Telegram accepts in HTML parse mode.
	htmlEntity = regexp.MustCompile(`^&(?:[a-zA-Z]+|#[0-9]+|#x[0-9a-fA-F]+);`)
	htmlTag    = regexp.MustCompile(`^</?(?:b|strong|i|em|u|ins|s|strike|del|span|tg-spoiler|a|code|pre|blockquote|tg-emoji)(?:\s[^<>]*)?>`)
)

// Validate rejects texts that would render wrongly or fail to send.
// Welcome is sent as HTML, so stray & and < must be escaped.
func (t Texts) Validate() error {
	var errs []error
	if n := strings.Count(t.Welcome, namePlaceholder); n > 1 {
		errs = append(errs, fmt.Errorf("texts.welcome: %q may appear at most once, found %d", namePlaceholder, n))
	}
	if n := strings.Count(t.Failed, errorPlaceholder); n > 1 {
		errs = append(errs, fmt.Errorf("texts.failed: %q may appear at most once, found %d", errorPlaceholder, n))
	}
	if err := checkHTML(t.Welcome); err != nil {
		errs = append(errs, fmt.Errorf("texts.welcome: %w", err))
	}
	return errors.Join(errs...)
}

func checkHTML(s string) error {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			if !htmlEntity.MatchString(s[i:]) {
				return fmt.Errorf("unescaped & at offset %d (use &amp;)", i)
			}
		case '<':
			if !htmlTag.MatchString(s[i:]) {
				return fmt.Errorf("unsupported tag or unescaped < at offset %d (use &lt;)", i)
			}
		}
	}
	return nil
}
