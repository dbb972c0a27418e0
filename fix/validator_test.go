package fix_test

import (
	"errors"
	"testing"
	"time"

	"github.com/tradewire/gofix/datadictionary"
	"github.com/tradewire/gofix/fix"
)

// orderDictionary is a small FIX.4.4 catalogue with one business message
// and one repeating group, on top of the session-layer definitions.
func orderDictionary() *datadictionary.DataDictionary {
	d := datadictionary.SessionDefinitions("FIX.4.4")
	d.SessionLayerOnly = false
	d.AddField(11, "ClOrdID", datadictionary.TypeString).
		AddField(38, "OrderQty", datadictionary.TypeQty).
		AddField(54, "Side", datadictionary.TypeChar).
		AddField(55, "Symbol", datadictionary.TypeString).
		AddField(146, "NoRelatedSym", datadictionary.TypeNumInGroup).
		AddField(65, "SymbolSfx", datadictionary.TypeString).
		AddEnum(54, "1", "2")

	d.AddMessage("D", "NewOrderSingle").
		AddMessageField("D", 11, true).
		AddMessageField("D", 55, true).
		AddMessageField("D", 54, true).
		AddMessageField("D", 38, false)

	d.AddMessage("V", "MarketDataRequest").
		AddGroup("V", 146, 55, 65)
	return d
}

// validMsg builds a well-formed inbound message of the given type.
func validMsg(t *testing.T, msgType string, body func(*fix.Message)) *fix.Message {
	t.Helper()
	m := fix.NewMessage()
	m.Header.SetString(fix.TagBeginString, "FIX.4.4")
	m.Header.SetString(fix.TagMsgType, msgType)
	m.Header.SetString(fix.TagSenderCompID, "S")
	m.Header.SetString(fix.TagTargetCompID, "T")
	m.Header.SetInt(fix.TagMsgSeqNum, 2)
	m.Header.SetUTCTimestamp(fix.TagSendingTime, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), true)
	if body != nil {
		body(m)
	}
	parsed, err := fix.ParseMessage(m.Build())
	if err != nil {
		t.Fatalf("build fixture: %v", err)
	}
	return parsed
}

func reasonOf(t *testing.T, err error) fix.SessionRejectReason {
	t.Helper()
	var rej fix.RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectError", err)
	}
	return rej.Reason
}

func TestValidateAcceptsWellFormedOrder(t *testing.T) {
	t.Parallel()

	d := orderDictionary()
	msg := validMsg(t, "D", func(m *fix.Message) {
		m.Body.SetString(fix.Tag(11), "order-1")
		m.Body.SetString(fix.Tag(55), "IBM")
		m.Body.SetString(fix.Tag(54), "1")
	})
	if err := fix.Validate(d, d, msg); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}
}

func TestValidateViolations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		msg    func(t *testing.T) *fix.Message
		reason fix.SessionRejectReason
	}{
		{
			name: "required body tag missing",
			msg: func(t *testing.T) *fix.Message {
				return validMsg(t, "D", func(m *fix.Message) {
					m.Body.SetString(fix.Tag(11), "order-1")
					m.Body.SetString(fix.Tag(54), "1")
					// 55 missing
				})
			},
			reason: fix.RejectRequiredTagMissing,
		},
		{
			name: "required header tag missing",
			msg: func(t *testing.T) *fix.Message {
				m := validMsg(t, "D", func(m *fix.Message) {
					m.Body.SetString(fix.Tag(11), "order-1")
					m.Body.SetString(fix.Tag(55), "IBM")
					m.Body.SetString(fix.Tag(54), "1")
				})
				m.Header.Remove(fix.TagSendingTime)
				parsed, err := fix.ParseMessage(m.Build())
				if err != nil {
					t.Fatal(err)
				}
				return parsed
			},
			reason: fix.RejectRequiredTagMissing,
		},
		{
			name: "undefined tag",
			msg: func(t *testing.T) *fix.Message {
				return validMsg(t, "D", func(m *fix.Message) {
					m.Body.SetString(fix.Tag(11), "order-1")
					m.Body.SetString(fix.Tag(55), "IBM")
					m.Body.SetString(fix.Tag(54), "1")
					m.Body.SetString(fix.Tag(999), "x")
				})
			},
			reason: fix.RejectUndefinedTag,
		},
		{
			name: "tag not defined for message",
			msg: func(t *testing.T) *fix.Message {
				return validMsg(t, "D", func(m *fix.Message) {
					m.Body.SetString(fix.Tag(11), "order-1")
					m.Body.SetString(fix.Tag(55), "IBM")
					m.Body.SetString(fix.Tag(54), "1")
					m.Body.SetString(fix.Tag(65), "sfx") // declared, but not on D
				})
			},
			reason: fix.RejectTagNotDefinedForMessage,
		},
		{
			name: "value out of enum range",
			msg: func(t *testing.T) *fix.Message {
				return validMsg(t, "D", func(m *fix.Message) {
					m.Body.SetString(fix.Tag(11), "order-1")
					m.Body.SetString(fix.Tag(55), "IBM")
					m.Body.SetString(fix.Tag(54), "9")
				})
			},
			reason: fix.RejectValueOutOfRange,
		},
		{
			name: "incorrect data format",
			msg: func(t *testing.T) *fix.Message {
				return validMsg(t, "D", func(m *fix.Message) {
					m.Body.SetString(fix.Tag(11), "order-1")
					m.Body.SetString(fix.Tag(55), "IBM")
					m.Body.SetString(fix.Tag(54), "1")
					m.Body.SetString(fix.Tag(38), "ten")
				})
			},
			reason: fix.RejectIncorrectDataFormat,
		},
		{
			name: "unknown message type",
			msg: func(t *testing.T) *fix.Message {
				return validMsg(t, "ZZ", nil)
			},
			reason: fix.RejectInvalidMsgType,
		},
		{
			name: "group count mismatch",
			msg: func(t *testing.T) *fix.Message {
				return validMsg(t, "V", func(m *fix.Message) {
					var g fix.Group
					g.AddString(fix.Tag(55), "IBM")
					m.Body.SetGroups(fix.Tag(146), []fix.Group{g})
					m.Body.SetInt(fix.Tag(146), 3) // declared 3, one entry
				})
			},
			reason: fix.RejectIncorrectNumInGroupCount,
		},
	}

	d := orderDictionary()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := fix.Validate(d, d, tt.msg(t))
			if err == nil {
				t.Fatal("Validate accepted an invalid message")
			}
			if got := reasonOf(t, err); got != tt.reason {
				t.Errorf("reason = %d, want %d", got, tt.reason)
			}
		})
	}
}

func TestValidateUserDefinedFields(t *testing.T) {
	t.Parallel()

	strict := orderDictionary()
	msg := validMsg(t, "D", func(m *fix.Message) {
		m.Body.SetString(fix.Tag(11), "order-1")
		m.Body.SetString(fix.Tag(55), "IBM")
		m.Body.SetString(fix.Tag(54), "1")
		m.Body.SetString(fix.Tag(6000), "custom")
	})

	if err := fix.Validate(strict, strict, msg); err == nil {
		t.Error("strict dictionary must reject undeclared user-defined tags")
	}

	lax := strict.Clone()
	lax.CheckUserDefinedFields = false
	if err := fix.Validate(lax, lax, msg); err != nil {
		t.Errorf("lax dictionary rejected a user-defined tag: %v", err)
	}
}

func TestValidateFieldsHaveValues(t *testing.T) {
	t.Parallel()

	d := orderDictionary()
	msg := validMsg(t, "D", func(m *fix.Message) {
		m.Body.SetString(fix.Tag(11), "order-1")
		m.Body.SetString(fix.Tag(55), "IBM")
		m.Body.SetString(fix.Tag(54), "1")
		m.Body.SetString(fix.Tag(38), "")
	})

	if got := reasonOf(t, fix.Validate(d, d, msg)); got != fix.RejectTagSpecifiedWithoutValue {
		t.Errorf("reason = %d, want %d", got, fix.RejectTagSpecifiedWithoutValue)
	}

	lax := d.Clone()
	lax.CheckFieldsHaveValues = false
	if err := fix.Validate(lax, lax, msg); err != nil {
		t.Errorf("empty value rejected with the check off: %v", err)
	}
}

func TestValidateFieldOrder(t *testing.T) {
	t.Parallel()

	d := orderDictionary()

	// A header tag appearing after a body tag is out of order.
	raw := wire("8=FIX.4.4|9=52|35=D|56=T|34=2|11=x|49=S|55=IBM|54=1|10=000|")
	msg, err := fix.ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	verr := fix.Validate(d, d, msg)
	if verr == nil {
		t.Fatal("out-of-order header tag accepted")
	}
	if got := reasonOf(t, verr); got != fix.RejectTagOutOfOrder {
		t.Errorf("reason = %d, want %d", got, fix.RejectTagOutOfOrder)
	}

	lax := d.Clone()
	lax.CheckFieldsOutOfOrder = false
	if lerr := fix.Validate(lax, lax, msg); lerr != nil {
		if got := reasonOf(t, lerr); got == fix.RejectTagOutOfOrder {
			t.Error("order still enforced with the check off")
		}
	}
}

func TestValidateFIXTSplit(t *testing.T) {
	t.Parallel()

	transport := datadictionary.SessionDefinitions("FIXT.1.1")
	app := orderDictionary()

	// An admin message validates against the transport dictionary even
	// though the application dictionary knows nothing about it.
	hb := validMsg(t, "0", nil)
	if err := fix.Validate(transport, app, hb); err != nil {
		t.Errorf("admin message rejected under FIXT split: %v", err)
	}

	// A business message validates against the application dictionary.
	order := validMsg(t, "D", func(m *fix.Message) {
		m.Body.SetString(fix.Tag(11), "order-1")
		m.Body.SetString(fix.Tag(55), "IBM")
		m.Body.SetString(fix.Tag(54), "1")
	})
	if err := fix.Validate(transport, app, order); err != nil {
		t.Errorf("business message rejected under FIXT split: %v", err)
	}

	// Unknown business types are judged by the application dictionary.
	unknown := validMsg(t, "ZZ", nil)
	if err := fix.Validate(transport, app, unknown); err == nil {
		t.Error("unknown business message type accepted")
	}
}
