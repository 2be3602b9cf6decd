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

// Package tagwriter drives a single physical write attempt against a
// presented tag: inspect formatting state, pick the message for the measured
// capacity, connect, verify, write. Every attempt ends in exactly one
// terminal outcome; retries belong to the caller.
package tagwriter

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tapcard/tapcard-core/pkg/payload"
)

// ErrorKind classifies a rejected write attempt.
type ErrorKind string

const (
	// ErrNotCompatible means the tag lacks a writable record format and
	// cannot be formatted into one.
	ErrNotCompatible ErrorKind = "not_compatible"
	// ErrWriteProtected means the tag refuses writes.
	ErrWriteProtected ErrorKind = "write_protected"
	// ErrSizeExceeded means no candidate message fits the tag, including the
	// post-connect capacity re-check.
	ErrSizeExceeded ErrorKind = "size_exceeded"
	// ErrTransport means the radio link faulted during connect, write, or
	// close.
	ErrTransport ErrorKind = "transport_error"
)

// WriteError is the terminal failure of a write attempt.
type WriteError struct {
	Kind   ErrorKind
	Detail string
}

func (e *WriteError) Error() string {
	return string(e.Kind) + ": " + e.Detail
}

func rejected(kind ErrorKind, format string, args ...any) *WriteError {
	return &WriteError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Tag is a physically present tag, as surfaced by a hardware driver. Capacity
// reads can only be trusted after Connect; before that they are estimates
// from the detection handshake.
type Tag interface {
	// UID returns the tag hardware identifier, hex-encoded.
	UID() string
	// Formatted reports whether the tag already carries a writable NDEF
	// container.
	Formatted() bool
	// Formattable reports whether a blank tag can be formatted on write.
	Formattable() bool
	// Capacity returns the usable message area in bytes, or 0 if unknown.
	Capacity() int
	// Writable reports the tag's write-protection flag. Only meaningful
	// after Connect.
	Writable() bool
	Connect(ctx context.Context) error
	// Write commits the message to an already formatted tag.
	Write(ctx context.Context, message []byte) error
	// FormatAndWrite formats a blank tag and commits the message in the one
	// combined operation the radio primitive provides.
	FormatAndWrite(ctx context.Context, message []byte) error
	Close() error
}

// Result describes a completed write.
type Result struct {
	TagUID       string
	Kind         payload.Kind
	BytesWritten int
	Capacity     int
}

// Writer executes write attempts. It is stateless between attempts; all
// per-attempt state lives on the stack.
type Writer struct{}

func New() *Writer {
	return &Writer{}
}

// Write runs one attempt against tag with the requested payload. It returns
// either a Result or a *WriteError; no outcome is retried internally.
func (*Writer) Write(ctx context.Context, tag Tag, req payload.Request) (*Result, *WriteError) {
	formatted := tag.Formatted()
	if !formatted && !tag.Formattable() {
		return nil, rejected(ErrNotCompatible,
			"tag %s has no record format and cannot be formatted", tag.UID())
	}

	// A blank tag's true capacity cannot be read pre-format, so the smallest
	// tier is assumed. Classify treats 0 the same way for formatted tags
	// whose capacity read failed.
	capacity := 0
	if formatted {
		capacity = tag.Capacity()
	}
	class := payload.Classify(capacity)

	cand, err := payload.BuildForRequest(req, class)
	if err != nil {
		return nil, rejected(ErrSizeExceeded, "%v", err)
	}

	if err := tag.Connect(ctx); err != nil {
		return nil, rejected(ErrTransport, "connect: %v", err)
	}

	if werr := writeConnected(ctx, tag, cand, formatted); werr != nil {
		// already a terminal failure; a close fault on top changes nothing
		if err := tag.Close(); err != nil {
			log.Warn().Err(err).Str("uid", tag.UID()).Msg("error closing tag connection")
		}
		return nil, werr
	}

	// Capacity must be read before close; afterwards the connection is gone.
	capacity = tag.Capacity()

	// A close fault is still a transport fault: the write may not have been
	// committed, so the attempt cannot report success.
	if err := tag.Close(); err != nil {
		return nil, rejected(ErrTransport, "close: %v", err)
	}

	log.Info().
		Str("uid", tag.UID()).
		Str("kind", string(cand.Kind)).
		Int("bytes", cand.Size()).
		Msg("wrote message to tag")

	return &Result{
		TagUID:       tag.UID(),
		Kind:         cand.Kind,
		BytesWritten: cand.Size(),
		Capacity:     capacity,
	}, nil
}

func writeConnected(ctx context.Context, tag Tag, cand *payload.Candidate, formatted bool) *WriteError {
	if !tag.Writable() {
		return rejected(ErrWriteProtected, "tag %s is write protected", tag.UID())
	}

	// Capacity as reported over an open connection can differ from the
	// pre-connect estimate; re-verify before committing.
	if reported := tag.Capacity(); reported > 0 && cand.Size() > reported {
		return rejected(ErrSizeExceeded,
			"message is %d bytes but connected tag reports %d", cand.Size(), reported)
	}

	if formatted {
		if err := tag.Write(ctx, cand.Bytes); err != nil {
			return rejected(ErrTransport, "write: %v", err)
		}
		return nil
	}

	if err := tag.FormatAndWrite(ctx, cand.Bytes); err != nil {
		return rejected(ErrTransport, "format and write: %v", err)
	}
	return nil
}
