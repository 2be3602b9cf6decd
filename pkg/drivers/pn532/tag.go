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

package pn532

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-pn532"
	"github.com/ZaparooProject/go-pn532/tagops"
	"github.com/tapcard/tapcard-core/pkg/ndef"
)

// pnTag adapts one detected tag to the write pipeline's tag contract. All
// radio I/O goes through tagops against the device that detected the tag.
type pnTag struct {
	detected *pn532.DetectedTag
	device   *pn532.Device
	ops      *tagops.TagOperations
	capacity int
}

func (d *Driver) wrapTag(detected *pn532.DetectedTag) *pnTag {
	capacity := 0
	if detected.Type == pn532.TagTypeNTAG && d.cfg != nil {
		// The detection handshake does not expose the NTAG variant, so the
		// capacity is an estimate until the capability container is read.
		capacity = d.cfg.AssumeCapacity()
	}
	return &pnTag{
		detected: detected,
		device:   d.realDevice,
		capacity: capacity,
	}
}

func (t *pnTag) UID() string {
	return t.detected.UID
}

// Formatted reports whether the tag carries an NDEF container. NTAG chips
// ship factory formatted; MIFARE Classic and FeliCa need a format pass this
// stack does not perform.
func (t *pnTag) Formatted() bool {
	return t.detected.Type == pn532.TagTypeNTAG
}

func (t *pnTag) Formattable() bool {
	return false
}

func (t *pnTag) Capacity() int {
	return t.capacity
}

// Writable always reports true: the PN532 has no cheap pre-write probe for
// NTAG lock bits, so protection surfaces as a transport fault from Write.
func (*pnTag) Writable() bool {
	return true
}

func (t *pnTag) Connect(ctx context.Context) error {
	if t.device == nil {
		return errors.New("no device available for tag operations")
	}
	ops := tagops.New(t.device)
	if err := ops.DetectTag(ctx); err != nil {
		return fmt.Errorf("failed to detect tag: %w", err)
	}
	t.ops = ops
	return nil
}

func (t *pnTag) Write(ctx context.Context, message []byte) error {
	if t.ops == nil {
		return errors.New("tag not connected")
	}
	msg, err := ndef.Unmarshal(message)
	if err != nil {
		return err
	}
	if err := t.ops.WriteNDEF(ctx, msg); err != nil {
		return fmt.Errorf("failed to write NDEF message: %w", err)
	}
	return nil
}

func (t *pnTag) FormatAndWrite(ctx context.Context, message []byte) error {
	// Unreachable while Formattable is false; kept as a plain write so the
	// behavior is sane if a formattable tag type is ever enabled.
	return t.Write(ctx, message)
}

func (t *pnTag) Close() error {
	t.ops = nil
	return nil
}
