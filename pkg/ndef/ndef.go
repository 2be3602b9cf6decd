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

// Package ndef builds and parses the NDEF records TapCard commits to tags.
// All encoding is deterministic: the same input always marshals to the same
// bytes, which is what lets the payload selection layer trust record sizes
// before a tag is ever touched.
package ndef

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hsanjuan/go-ndef"
)

// DefaultLanguage is the IANA language code carried by text records.
const DefaultLanguage = "en"

var (
	// NdefEnd is the Type 2 tag TLV terminator.
	NdefEnd = []byte{0xFE}

	// ErrNoNDEF is returned when no NDEF record is found.
	ErrNoNDEF = errors.New("no NDEF record found")
	// ErrInvalidNDEF is returned when the NDEF format is invalid.
	ErrInvalidNDEF = errors.New("invalid NDEF format")
)

// TextRecord returns a well-known "T" record: a status byte holding the
// language code length, the language code, then the UTF-8 text. An empty
// language falls back to DefaultLanguage.
func TextRecord(text, language string) *ndef.Record {
	if language == "" {
		language = DefaultLanguage
	}
	return ndef.NewTextRecord(text, language)
}

// URIRecord returns a well-known "U" record. The NFC Forum URI abbreviation
// table is applied by go-ndef, so "https://" collapses to identifier 0x04.
func URIRecord(uri string) *ndef.Record {
	return ndef.NewURIRecord(uri)
}

// MediaRecord returns a media-type (TNF 0x02) record carrying mimeType as the
// record type field and payload verbatim. Readers dispatching on MIME type see
// the payload untouched.
func MediaRecord(mimeType string, payload []byte) *ndef.Record {
	return ndef.NewMediaRecord(mimeType, payload)
}

// Marshal serializes records into a single NDEF message. MB/ME flags are set
// by record position during marshalling.
func Marshal(records ...*ndef.Record) ([]byte, error) {
	msg := ndef.NewMessageFromRecords(records...)
	data, err := msg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal NDEF message: %w", err)
	}
	return data, nil
}

// WrapTLV wraps a marshalled NDEF message in the Type 2 tag TLV container
// (0x03 length header, 0xFE terminator) for raw memory images.
func WrapTLV(message []byte) ([]byte, error) {
	header, err := calculateTLVHeader(message)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, len(header)+len(message)+1)
	result = append(result, header...)
	result = append(result, message...)
	result = append(result, NdefEnd...)

	return result, nil
}

// calculateTLVHeader calculates the NDEF TLV header
func calculateTLVHeader(payload []byte) ([]byte, error) {
	length := len(payload)

	// Short format (length < 255)
	if length < 255 {
		return []byte{0x03, byte(length)}, nil
	}

	// Long format (length >= 255)
	// NFCForum-TS-Type-2-Tag_1.1.pdf Page 9
	if length > 0xFFFF {
		return nil, errors.New("NDEF payload too large")
	}

	header := []byte{0x03, 0xFF}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.BigEndian, uint16(length)); err != nil {
		return nil, fmt.Errorf("failed to write NDEF length header: %w", err)
	}

	return append(header, buf.Bytes()...), nil
}
