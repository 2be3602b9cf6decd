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

package requests

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/tapcard/tapcard-core/pkg/config"
	"github.com/tapcard/tapcard-core/pkg/emulation"
	"github.com/tapcard/tapcard-core/pkg/session"
)

// RequestEnv carries everything a method handler may need for one request.
type RequestEnv struct {
	Session *session.Coordinator
	Gateway *emulation.Gateway
	Config  *config.Instance
	Params  json.RawMessage
	ID      uuid.UUID
	IsLocal bool
}
