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

package models

// WriteParams requests a dual-payload write: the rich vCard content plus the
// fallback URL. Both are required; missing either is rejected synchronously
// before any radio activity.
type WriteParams struct {
	VCard string `json:"vcard" validate:"required"`
	URL   string `json:"url"   validate:"required,url"`
}

// WriteURLParams requests a URL-only write.
type WriteURLParams struct {
	URL string `json:"url" validate:"required,url"`
}

// WriteTextParams requests a single text or raw record write.
type WriteTextParams struct {
	Text string `json:"text" validate:"required"`
}

// EmulationStartParams registers an outgoing dual message for card emulation.
type EmulationStartParams struct {
	VCard string `json:"vcard" validate:"required"`
	URL   string `json:"url"   validate:"required,url"`
}
