// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package admin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpTracker_StartFinishMovesToHistory(t *testing.T) {
	tr := NewOpTracker(10, 1000)

	id := tr.Start("flush_path")
	require.Len(t, tr.InFlight(), 1)
	assert.Empty(t, tr.Historic())

	tr.Finish(id)

	assert.Empty(t, tr.InFlight())
	hist := tr.Historic()
	require.Len(t, hist, 1)
	assert.Equal(t, "flush_path", hist[0].Description)
	assert.False(t, hist[0].FinishedAt.IsZero())
}

func TestOpTracker_FinishUnknownIDIsNoop(t *testing.T) {
	tr := NewOpTracker(10, 1000)
	tr.Finish(999)
	assert.Empty(t, tr.Historic())
}

func TestOpTracker_HistoryIsBounded(t *testing.T) {
	tr := NewOpTracker(2, 1000)

	for i := 0; i < 5; i++ {
		id := tr.Start("op")
		tr.Finish(id)
	}

	assert.Len(t, tr.Historic(), 2, "history must be capped at historyCap")
}

func TestOpTracker_DefaultsHistoryCapWhenNonPositive(t *testing.T) {
	tr := NewOpTracker(0, 0)
	for i := 0; i < 25; i++ {
		id := tr.Start("op")
		tr.Finish(id)
	}
	assert.Len(t, tr.Historic(), 20, "a non-positive historyCap must default to 20")
}

func TestOpTracker_SlowOpCheckFindsOpsPastThreshold(t *testing.T) {
	tr := NewOpTracker(10, 5) // 5ms complaint threshold

	id := tr.Start("slow_command")
	defer tr.Finish(id)

	time.Sleep(10 * time.Millisecond)

	slow := tr.SlowOpCheck()
	require.Len(t, slow, 1)
	assert.Equal(t, id, slow[0].ID)
}

func TestOpTracker_SlowOpCheckEmptyBeforeThreshold(t *testing.T) {
	tr := NewOpTracker(10, 10_000)
	id := tr.Start("op")
	defer tr.Finish(id)

	assert.Empty(t, tr.SlowOpCheck())
}
