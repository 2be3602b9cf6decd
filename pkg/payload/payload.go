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

// Package payload decides what actually gets committed to a tag: given a
// contact card and a detected tag capacity it builds the candidate messages
// and picks the largest one that fits. Selection is pure and re-derivable
// from its inputs, so a different tag next time gets a fresh decision.
package payload

import (
	"errors"
	"fmt"

	gondef "github.com/hsanjuan/go-ndef"
	"github.com/tapcard/tapcard-core/pkg/ndef"
)

// MIME types used for media records.
const (
	MIMEVCard = "text/vcard"
	MIMERaw   = "application/octet-stream"
)

// Kind names the shape of a candidate message.
type Kind string

const (
	// KindDual is a two-record message: a vCard media record followed by a
	// URI fallback for readers that cannot parse the rich type.
	KindDual Kind = "dual"
	// KindURLOnly is a single URI record.
	KindURLOnly Kind = "urlOnly"
	// KindText is a single well-known text record.
	KindText Kind = "text"
	// KindRaw is a single octet-stream media record, bytes verbatim.
	KindRaw Kind = "raw"
)

// CapacityClass is the byte budget tier of a physical tag. Values follow the
// NTAG213/215/216 usable NDEF areas.
type CapacityClass int

const (
	Capacity144 CapacityClass = 144
	Capacity504 CapacityClass = 504
	Capacity888 CapacityClass = 888
)

// Classify maps a reported tag capacity in bytes to its tier. Unknown or
// unreadable capacities (≤0) classify to the smallest tier, the safe
// assumption for a blank tag whose true size cannot be read pre-format.
func Classify(capacityBytes int) CapacityClass {
	switch {
	case capacityBytes >= int(Capacity888):
		return Capacity888
	case capacityBytes >= int(Capacity504):
		return Capacity504
	default:
		return Capacity144
	}
}

// ErrSizeExceeded is returned when no candidate message fits the tag.
var ErrSizeExceeded = errors.New("no candidate message fits tag capacity")

// ContactCard is the immutable input to a dual write: the rich vCard blob
// plus an absolute URL fallback.
type ContactCard struct {
	URL   string
	VCard []byte
}

// Candidate is an encoded message ready for a write attempt, with its kind
// and serialized form. Size is always the serialized length, so capacity
// checks never guess.
type Candidate struct {
	Message *gondef.Message
	Kind    Kind
	Bytes   []byte
}

// Size returns the serialized byte length of the candidate.
func (c *Candidate) Size() int {
	return len(c.Bytes)
}

func newCandidate(kind Kind, records ...*gondef.Record) (*Candidate, error) {
	data, err := ndef.Marshal(records...)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s candidate: %w", kind, err)
	}
	return &Candidate{
		Kind:    kind,
		Message: gondef.NewMessageFromRecords(records...),
		Bytes:   data,
	}, nil
}

// BuildDual builds the two-record rich candidate. Record order is fixed: the
// vCard record first so richer clients act on it, the URI second as fallback.
func BuildDual(card ContactCard) (*Candidate, error) {
	return newCandidate(KindDual,
		ndef.MediaRecord(MIMEVCard, card.VCard),
		ndef.URIRecord(card.URL),
	)
}

// BuildURLOnly builds the single URI record candidate.
func BuildURLOnly(url string) (*Candidate, error) {
	return newCandidate(KindURLOnly, ndef.URIRecord(url))
}

// BuildText builds a single well-known text record candidate. An empty
// language uses the encoder default.
func BuildText(text, language string) (*Candidate, error) {
	return newCandidate(KindText, ndef.TextRecord(text, language))
}

// BuildRaw builds a single octet-stream record carrying text verbatim.
func BuildRaw(text string) (*Candidate, error) {
	return newCandidate(KindRaw, ndef.MediaRecord(MIMERaw, []byte(text)))
}

// Choose builds both candidates for card and selects the first that fits
// class. Equality with the threshold counts as fitting. When neither fits the
// failure is terminal: ErrSizeExceeded, never a silent degrade.
func Choose(card ContactCard, class CapacityClass) (*Candidate, error) {
	dual, err := BuildDual(card)
	if err != nil {
		return nil, err
	}
	if dual.Size() <= int(class) {
		return dual, nil
	}

	urlOnly, err := BuildURLOnly(card.URL)
	if err != nil {
		return nil, err
	}
	if urlOnly.Size() <= int(class) {
		return urlOnly, nil
	}

	return nil, fmt.Errorf("%w: dual=%d urlOnly=%d capacity=%d",
		ErrSizeExceeded, dual.Size(), urlOnly.Size(), int(class))
}

// Request is the payload half of a pending write: which message shape the
// caller asked for plus its inputs. Language applies to text requests only;
// empty means the encoder default.
type Request struct {
	Kind     Kind
	Text     string
	Language string
	Card     ContactCard
}

// BuildForRequest builds the message for a request at the given capacity
// class. Dual requests go through Choose and may degrade to urlOnly; the
// single-record modes build directly but are still held to the capacity
// threshold.
func BuildForRequest(req Request, class CapacityClass) (*Candidate, error) {
	if req.Kind == KindDual {
		return Choose(req.Card, class)
	}

	var cand *Candidate
	var err error
	switch req.Kind {
	case KindURLOnly:
		cand, err = BuildURLOnly(req.Card.URL)
	case KindText:
		cand, err = BuildText(req.Text, req.Language)
	case KindRaw:
		cand, err = BuildRaw(req.Text)
	default:
		return nil, fmt.Errorf("unknown payload kind: %s", req.Kind)
	}
	if err != nil {
		return nil, err
	}

	if cand.Size() > int(class) {
		return nil, fmt.Errorf("%w: %s=%d capacity=%d",
			ErrSizeExceeded, cand.Kind, cand.Size(), int(class))
	}

	return cand, nil
}
