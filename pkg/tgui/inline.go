package tgui

import (
	"errors"

	tele "gopkg.in/telebot.v4"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Inline builds inline keyboards row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
	err  error
}

func NewInline() *Inline { return &Inline{rm: &tele.ReplyMarkup{}} }

// Row appends a row of buttons.
func (i *Inline) Row(btn ...tele.Btn) *Inline {
	for _, b := range btn {
		if len(b.Data) > MaxCallbackDataLen && i.err == nil {
			i.err = ErrCallbackDataTooLong
		}
	}
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Markup returns the keyboard, or an error if any button carried
// oversized callback data.
func (i *Inline) Markup() (*tele.ReplyMarkup, error) {
	if i.err != nil {
		return nil, i.err
	}
	return i.rm, nil
}

// Btn creates a callback button. data is sent verbatim (no unique prefix).
func Btn(text, data string) tele.Btn { return tele.Btn{Text: text, Data: data} }

// YesNo is a single-row confirmation keyboard.
func YesNo(yesText, yesData, noText, noData string) (*tele.ReplyMarkup, error) {
	return NewInline().Row(Btn(yesText, yesData), Btn(noText, noData)).Markup()
}
