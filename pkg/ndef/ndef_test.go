// TapCard Core
// Copyright (c) 2026 The TapCard Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of TapCard Core.
//
// TapCard Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// TapCard Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with TapCard Core.  If not, see <http://www.gnu.org/licenses/>.

package ndef

import (
	"bytes"
	"strings"
	"testing"

	gondef "github.com/hsanjuan/go-ndef"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRecordLayout(t *testing.T) {
	t.Parallel()

	data, err := Marshal(TextRecord("hello", ""))
	require.NoError(t, err)

	msg, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, msg.Records, 1)

	rec := msg.Records[0]
	assert.Equal(t, byte(gondef.NFCForumWellKnownType), rec.TNF())
	assert.Equal(t, "T", rec.Type())

	payload, err := rec.Payload()
	require.NoError(t, err)
	raw := payload.Marshal()

	// status byte: UTF-8 flag clear, language length in the low bits
	require.GreaterOrEqual(t, len(raw), 1)
	assert.Equal(t, byte(len(DefaultLanguage)), raw[0]&0x3F)
	assert.Equal(t, DefaultLanguage, string(raw[1:1+len(DefaultLanguage)]))
	assert.Equal(t, "hello", string(raw[1+len(DefaultLanguage):]))
}

func TestTextRecordRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
	}{
		{name: "ascii", text: "hello world"},
		{name: "unicode", text: "héllo wörld 你好"},
		{name: "empty", text: ""},
		{name: "long", text: strings.Repeat("x", 600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := Marshal(TextRecord(tt.text, ""))
			require.NoError(t, err)

			got, err := ParseToText(data)
			require.NoError(t, err)
			assert.Equal(t, tt.text, got)
		})
	}
}

func TestTextRecordLanguage(t *testing.T) {
	t.Parallel()

	data, err := Marshal(TextRecord("hallo", "de"))
	require.NoError(t, err)

	msg, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, msg.Records, 1)

	payload, err := msg.Records[0].Payload()
	require.NoError(t, err)
	raw := payload.Marshal()

	require.GreaterOrEqual(t, len(raw), 3)
	assert.Equal(t, byte(2), raw[0]&0x3F)
	assert.Equal(t, "de", string(raw[1:3]))
	assert.Equal(t, "hallo", string(raw[3:]))
}

func TestURIRecordAbbreviation(t *testing.T) {
	t.Parallel()

	data, err := Marshal(URIRecord("https://tapcard.example/c/abc123"))
	require.NoError(t, err)

	msg, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, msg.Records, 1)

	rec := msg.Records[0]
	assert.Equal(t, byte(gondef.NFCForumWellKnownType), rec.TNF())
	assert.Equal(t, "U", rec.Type())

	payload, err := rec.Payload()
	require.NoError(t, err)
	raw := payload.Marshal()

	// "https://" collapses to identifier code 0x04
	require.NotEmpty(t, raw)
	assert.Equal(t, byte(0x04), raw[0])
	assert.Equal(t, "tapcard.example/c/abc123", string(raw[1:]))
}

func TestURIRecordRoundTrip(t *testing.T) {
	t.Parallel()

	uris := []string{
		"https://tapcard.example/c/abc123",
		"http://www.example.com",
		"tel:+15551234567",
		"mailto:someone@example.com",
	}

	for _, uri := range uris {
		t.Run(uri, func(t *testing.T) {
			t.Parallel()

			data, err := Marshal(URIRecord(uri))
			require.NoError(t, err)

			got, err := ParseToText(data)
			require.NoError(t, err)
			assert.Equal(t, uri, got)
		})
	}
}

func TestMediaRecordPayloadVerbatim(t *testing.T) {
	t.Parallel()

	vcard := []byte("BEGIN:VCARD\r\nVERSION:4.0\r\nFN:Ada Lovelace\r\nEND:VCARD\r\n")

	data, err := Marshal(MediaRecord("text/vcard", vcard))
	require.NoError(t, err)

	msg, err := Unmarshal(data)
	require.NoError(t, err)
	require.Len(t, msg.Records, 1)

	rec := msg.Records[0]
	assert.Equal(t, byte(gondef.MediaType), rec.TNF())
	assert.Equal(t, "text/vcard", rec.Type())

	payload, err := rec.Payload()
	require.NoError(t, err)
	assert.Equal(t, vcard, payload.Marshal())
}

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()

	build := func() []byte {
		data, err := Marshal(
			MediaRecord("text/vcard", []byte("BEGIN:VCARD\r\nEND:VCARD\r\n")),
			URIRecord("https://tapcard.example/c/abc123"),
		)
		require.NoError(t, err)
		return data
	}

	first := build()
	second := build()
	assert.Equal(t, first, second)
}

func TestWrapTLVShortFormat(t *testing.T) {
	t.Parallel()

	message := bytes.Repeat([]byte{0xAA}, 10)

	wrapped, err := WrapTLV(message)
	require.NoError(t, err)

	assert.Equal(t, byte(0x03), wrapped[0])
	assert.Equal(t, byte(10), wrapped[1])
	assert.Equal(t, message, wrapped[2:len(wrapped)-1])
	assert.Equal(t, byte(0xFE), wrapped[len(wrapped)-1])
}

func TestWrapTLVLongFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		length int
		header []byte
	}{
		{name: "largest short", length: 254, header: []byte{0x03, 0xFE}},
		{name: "smallest long", length: 255, header: []byte{0x03, 0xFF, 0x00, 0xFF}},
		{name: "long", length: 1000, header: []byte{0x03, 0xFF, 0x03, 0xE8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			message := bytes.Repeat([]byte{0xBB}, tt.length)

			wrapped, err := WrapTLV(message)
			require.NoError(t, err)

			assert.Equal(t, tt.header, wrapped[:len(tt.header)])
			assert.Equal(t, byte(0xFE), wrapped[len(wrapped)-1])
			assert.Len(t, wrapped, len(tt.header)+tt.length+1)
		})
	}
}

func TestWrapTLVTooLarge(t *testing.T) {
	t.Parallel()

	_, err := WrapTLV(make([]byte, 0x10000))
	require.Error(t, err)
}

func TestUnmarshalGarbage(t *testing.T) {
	t.Parallel()

	_, err := Unmarshal([]byte{0x00, 0x01, 0x02})
	require.Error(t, err)
}

func TestParseTextPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		want    string
		wantErr bool
	}{
		{name: "english", payload: []byte{0x02, 'e', 'n', 'h', 'i'}, want: "hi"},
		{name: "empty text", payload: []byte{0x02, 'e', 'n'}, want: ""},
		{name: "empty payload", payload: []byte{}, wantErr: true},
		{name: "truncated language", payload: []byte{0x05, 'e'}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTextPayload(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseURIPayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
		want    string
		wantErr bool
	}{
		{name: "https", payload: append([]byte{0x04}, "example.com"...), want: "https://example.com"},
		{name: "no prefix", payload: append([]byte{0x00}, "geo:0,0"...), want: "geo:0,0"},
		{name: "unknown code", payload: []byte{0xF0, 'x'}, wantErr: true},
		{name: "empty", payload: []byte{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseURIPayload(tt.payload)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
