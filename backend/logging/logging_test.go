// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "mlsds", "info", "json")
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("group_id", "g1").Msg("commit applied")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "mlsds", line["app"])
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "g1", line["group_id"])
	assert.Equal(t, "commit applied", line["message"])
	assert.Contains(t, line, "time")
}

func TestConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "mlsds", "debug", "console")
	require.NoError(t, err)
	log.Debug().Msg("ready")
	assert.Contains(t, buf.String(), "ready")
}

func TestBadSettings(t *testing.T) {
	_, err := New("mlsds", "loud", "json")
	assert.Error(t, err)
	_, err = New("mlsds", "info", "xml")
	assert.Error(t, err)
}
