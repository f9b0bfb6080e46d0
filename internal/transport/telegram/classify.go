package telegram

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "relaybot/internal/transport"
)

// telebot formats unknown API errors as "telegram: <description> (<code>)".
var trailingCode = regexp.MustCompile(`\((\d{3})\)\s*$`)

// classify wraps a telebot error into a *kit.DeliveryError.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *kit.DeliveryError
	if errors.As(err, &de) {
		return err
	}

	var fe tele.FloodError
	if errors.As(err, &fe) {
		return &kit.DeliveryError{
			Kind:        kit.FailureRateLimited,
			Code:        429,
			Description: "too many requests",
			RetryAfter:  time.Duration(fe.RetryAfter) * time.Second,
			Err:         err,
		}
	}

	code, desc := 0, err.Error()
	var te *tele.Error
	if errors.As(err, &te) {
		code, desc = te.Code, te.Description
	} else if m := trailingCode.FindStringSubmatch(desc); m != nil {
		code, _ = strconv.Atoi(m[1])
	}
	return &kit.DeliveryError{Kind: kindForCode(code), Code: code, Description: desc, Err: err}
}

func kindForCode(code int) kit.FailureKind {
	switch code {
	case 403:
		return kit.FailureForbidden
	case 400:
		return kit.FailureBadRequest
	case 429:
		return kit.FailureRateLimited
	default:
		return kit.FailureOther
	}
}
