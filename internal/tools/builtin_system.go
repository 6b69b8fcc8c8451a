// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package tools

import (
	"context"

	"itassist/internal/sysinfo"
)

type systemInfoArgs struct {
	InfoType string `json:"info_type" validate:"required,oneof=general cpu memory disk network processes" jsonschema:"enum=general,enum=cpu,enum=memory,enum=disk,enum=network,enum=processes,description=Kind of information to return"`
}

func (b *builtins) systemInfo(ctx context.Context, args systemInfoArgs) (string, error) {
	return sysinfo.Collect(ctx, args.InfoType)
}
