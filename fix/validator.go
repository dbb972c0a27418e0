package fix

import (
	"github.com/tradewire/gofix/datadictionary"
)

// This file implements dictionary-driven message validation. The walk
// operates on the flat wire-order field sequence so ordering and
// repeating-group structure are checked exactly as transmitted.
//
// For FIXT sessions the transport dictionary governs the header, trailer
// and administrative messages while the application dictionary (selected
// by ApplVerID) governs the business payload. For classic FIX both roles
// are played by the same dictionary.

// Validate checks msg against the resolved dictionaries and returns a
// RejectError describing the first violation.
func Validate(transport, app *datadictionary.DataDictionary, msg *Message) error {
	msgType, err := msg.MsgType()
	if err != nil {
		return rejectRequiredTagMissing(TagMsgType)
	}

	body := app
	if IsAdminMsgType(msgType) {
		body = transport
	}

	if body.CheckUnknownMsgType && !body.IsEmpty() && !body.IsMsgType(msgType) {
		return rejectInvalidMsgType()
	}

	if err := checkFieldOrder(transport, msg); err != nil {
		return err
	}
	if err := checkWellFormedFields(transport, body, msgType, msg); err != nil {
		return err
	}
	if err := checkRequired(transport, body, msgType, msg); err != nil {
		return err
	}
	return checkGroups(body, msgType, msg)
}

// checkFieldOrder enforces the header / body / trailer section order of
// the wire sequence.
func checkFieldOrder(transport *datadictionary.DataDictionary, msg *Message) error {
	if !transport.CheckFieldsOutOfOrder {
		return nil
	}
	const (
		inHeader = iota
		inBody
		inTrailer
	)
	section := inHeader
	for _, tv := range msg.Fields() {
		switch {
		case IsHeaderTag(tv.Tag):
			if section != inHeader {
				return rejectTagOutOfOrder(tv.Tag)
			}
		case IsTrailerTag(tv.Tag):
			section = inTrailer
		default:
			if section == inTrailer {
				return rejectTagOutOfOrder(tv.Tag)
			}
			section = inBody
		}
	}
	return nil
}

// checkWellFormedFields validates each field in isolation: declared,
// non-empty, format-correct, enum-valid, and permitted in this message.
func checkWellFormedFields(transport, body *datadictionary.DataDictionary, msgType string, msg *Message) error {
	bodyDef, haveDef := body.Message(msgType)
	for _, tv := range msg.Fields() {
		dict := body
		if IsHeaderTag(tv.Tag) || IsTrailerTag(tv.Tag) {
			dict = transport
		}

		if dict.CheckFieldsHaveValues && len(tv.Value) == 0 {
			return rejectTagWithoutValue(tv.Tag)
		}

		if !dict.IsField(int(tv.Tag)) {
			if int(tv.Tag) >= userDefinedTagMin {
				if dict.CheckUserDefinedFields {
					return rejectUndefinedTag(tv.Tag)
				}
				continue
			}
			if dict.CheckUnknownFields && !dict.IsEmpty() {
				return rejectUndefinedTag(tv.Tag)
			}
			continue
		}

		if err := checkFormat(dict, tv); err != nil {
			return err
		}
		if !dict.ValueIsValid(int(tv.Tag), tv.Value) {
			return rejectValueOutOfRange(tv.Tag)
		}

		// A declared body field must belong to this message type.
		if !IsHeaderTag(tv.Tag) && !IsTrailerTag(tv.Tag) && haveDef && dict.CheckUnknownFields && !bodyDef.Has(int(tv.Tag)) {
			return rejectTagNotDefinedForMessage(tv.Tag)
		}
	}
	return nil
}

// checkFormat verifies the value decodes as the field's declared type.
func checkFormat(dict *datadictionary.DataDictionary, tv TagValue) error {
	f, ok := dict.Field(int(tv.Tag))
	if !ok || len(tv.Value) == 0 {
		return nil
	}
	var err error
	switch f.Type {
	case datadictionary.TypeInt, datadictionary.TypeLength,
		datadictionary.TypeSeqNum, datadictionary.TypeNumInGroup:
		_, err = ParseInt(tv.Value)
	case datadictionary.TypeFloat, datadictionary.TypePrice, datadictionary.TypeQty:
		_, err = ParseFloat(tv.Value)
	case datadictionary.TypeBoolean:
		_, err = ParseBool(tv.Value)
	case datadictionary.TypeChar:
		_, err = ParseChar(tv.Value)
	case datadictionary.TypeUTCTimestamp:
		_, err = ParseUTCTimestamp(tv.Value)
	}
	if err != nil {
		return rejectIncorrectDataFormat(tv.Tag)
	}
	return nil
}

// checkRequired verifies the required header, trailer and body fields.
func checkRequired(transport, body *datadictionary.DataDictionary, msgType string, msg *Message) error {
	if transport.CheckRequiredFields {
		for _, tag := range transport.Header().RequiredTags() {
			if !msg.Header.Has(Tag(tag)) {
				return rejectRequiredTagMissing(Tag(tag))
			}
		}
		for _, tag := range transport.Trailer().RequiredTags() {
			if !msg.Trailer.Has(Tag(tag)) {
				return rejectRequiredTagMissing(Tag(tag))
			}
		}
	}
	if !body.CheckRequiredFields {
		return nil
	}
	if def, ok := body.Message(msgType); ok {
		for _, tag := range def.RequiredTags() {
			if !msg.Body.Has(Tag(tag)) {
				return rejectRequiredTagMissing(Tag(tag))
			}
		}
	}
	return nil
}

// checkGroups walks the wire sequence validating repeating group
// structure: the declared count must match the number of entries, each
// entry must open with the delimiter tag, and members must belong to the
// group template.
func checkGroups(body *datadictionary.DataDictionary, msgType string, msg *Message) error {
	def, ok := body.Message(msgType)
	if !ok {
		return nil
	}

	fields := msg.Fields()
	for i := 0; i < len(fields); i++ {
		tv := fields[i]
		group, isCount := def.Group(int(tv.Tag))
		if !isCount {
			continue
		}
		declared, err := ParseInt(tv.Value)
		if err != nil {
			return rejectIncorrectDataFormat(tv.Tag)
		}

		entries := 0
		j := i + 1
		for ; j < len(fields); j++ {
			if !group.IsMember(int(fields[j].Tag)) {
				break
			}
			if int(fields[j].Tag) == group.DelimiterTag {
				entries++
			} else if entries == 0 {
				// Entry fields ahead of the first delimiter.
				return rejectTagOutOfOrder(fields[j].Tag)
			}
		}
		if entries != declared {
			return rejectGroupCount(tv.Tag)
		}
		i = j - 1
	}
	return nil
}
