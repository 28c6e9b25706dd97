//  Copyright (c) 2023 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package report_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.branchcov.dev/covpass/report"
)

func TestWriterProducesExpectedLines(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "branches.txt")

	w, err := report.Open(path, true)
	require.NoError(t, err)
	w.BlockLine("main", 0, "main.c:10")
	w.BlockLine("main", 1, "UNKNOWN")
	w.EdgeLine(0, 1, "ICMP_SLT", true)
	w.EdgeLine(0, 2, "ICMP_SGE", false)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	want := "@@@ main, branch id: 0| loc main.c:10\n" +
		"@@@ main, branch id: 1| loc UNKNOWN\n" +
		"@@@ edge id (0,1), cond type ICMP_SLT, true\n" +
		"@@@ edge id (0,2), cond type ICMP_SGE, false\n"
	require.Equal(t, want, string(data))
}

func TestWriterTruncatesOnOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "branches.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale content\n"), 0o644))

	w, err := report.Open(path, false)
	require.NoError(t, err)
	w.BlockLine("f", 0, "UNKNOWN")
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "@@@ f, branch id: 0| loc UNKNOWN\n", string(data))
}

func TestRunTwiceProducesIdenticalSnapshots(t *testing.T) {
	t.Parallel()

	run := func() report.Snapshot {
		dir := t.TempDir()
		w, err := report.Open(filepath.Join(dir, "branches.txt"), true)
		require.NoError(t, err)
		w.BlockLine("f", 0, "f.c:1")
		w.EdgeLine(0, 1, "ICMP_EQ", true)
		w.EdgeLine(0, 2, "ICMP_NE", false)
		require.NoError(t, w.Close())
		return w.TakeSnapshot()
	}

	a, b := run(), run()
	require.True(t, a.Equal(b))
	require.Empty(t, cmp.Diff(a, b))
}

func TestSnapshotGobRoundTripViaS2(t *testing.T) {
	t.Parallel()

	snapshot := report.Snapshot{Records: []string{
		"@@@ f, branch id: 0| loc f.c:1",
		"@@@ edge id (0,1), cond type ICMP_EQ, true",
	}}

	dir := t.TempDir()
	path := filepath.Join(dir, "snap.gob")
	require.NoError(t, report.WriteSnapshotFile(path, snapshot))

	got, err := report.ReadSnapshotFile(path)
	require.NoError(t, err)
	require.True(t, snapshot.Equal(got))
}
