/*
TapCard Core
Copyright (c) 2026 The TapCard Project Contributors.
SPDX-License-Identifier: GPL-3.0-or-later

This file is part of TapCard Core.

TapCard Core is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

TapCard Core is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with TapCard Core.  If not, see <http://www.gnu.org/licenses/>.
*/

package ndef

import (
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// uriPrefixes is the NFC Forum URI RTD abbreviation table, indexed by the
// identifier code carried in the first payload byte of a "U" record.
var uriPrefixes = []string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

// Unmarshal parses a marshalled NDEF message.
func Unmarshal(data []byte) (*ndef.Message, error) {
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("failed to parse NDEF message: %w", err)
	}
	if len(msg.Records) == 0 {
		return nil, ErrNoNDEF
	}
	return msg, nil
}

// ParseToText parses a marshalled NDEF message and returns the first text or
// URI record as a string.
func ParseToText(data []byte) (string, error) {
	msg, err := Unmarshal(data)
	if err != nil {
		return "", err
	}

	for _, rec := range msg.Records {
		if rec.TNF() != ndef.NFCForumWellKnownType {
			continue
		}
		if result, err := handleWellKnownRecord(rec); err == nil {
			return result, nil
		}
	}

	return "", ErrNoNDEF
}

// handleWellKnownRecord processes NFC Forum well-known types
func handleWellKnownRecord(rec *ndef.Record) (string, error) {
	payloadBytes, err := extractPayloadBytes(rec)
	if err != nil {
		return "", err
	}

	switch rec.Type() {
	case "T":
		return ParseTextPayload(payloadBytes)
	case "U":
		return ParseURIPayload(payloadBytes)
	default:
		return "", fmt.Errorf("unsupported well-known type: %s", rec.Type())
	}
}

// extractPayloadBytes extracts the payload bytes from an NDEF record
func extractPayloadBytes(rec *ndef.Record) ([]byte, error) {
	payload, err := rec.Payload()
	if err != nil {
		return nil, fmt.Errorf("failed to get NDEF record payload: %w", err)
	}
	return payload.Marshal(), nil
}

// ParseTextPayload decodes a well-known text record payload: status byte,
// language code, UTF-8 text.
func ParseTextPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", errors.New("text payload too short")
	}

	status := payload[0]
	langLen := int(status & 0x3F)

	if len(payload) < 1+langLen {
		return "", errors.New("invalid text payload length")
	}

	return string(payload[1+langLen:]), nil
}

// ParseURIPayload decodes a well-known URI record payload, expanding the
// abbreviation identifier in the first byte.
func ParseURIPayload(payload []byte) (string, error) {
	if len(payload) < 1 {
		return "", errors.New("URI payload too short")
	}

	code := int(payload[0])
	if code >= len(uriPrefixes) {
		return "", fmt.Errorf("unknown URI prefix code: %d", code)
	}

	return uriPrefixes[code] + string(payload[1:]), nil
}
