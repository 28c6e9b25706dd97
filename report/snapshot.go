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

package report

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/s2"
)

// Snapshot is the in-memory, ordered record of every line a Writer produced.
// It exists so that two runs of the pipeline over the same module can be
// compared for byte-identical output (spec property P6, "report
// determinism") without re-reading the file from disk, and so that
// cmd/covpass can persist a run's report alongside the text report.
type Snapshot struct {
	Records []string
}

// Equal reports whether two snapshots contain the same lines in the same
// order.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.Records) != len(other.Records) {
		return false
	}
	for i := range s.Records {
		if s.Records[i] != other.Records[i] {
			return false
		}
	}
	return true
}

// GobEncode encodes the snapshot through an s2 compressor, mirroring
// inference.InferredMap.GobEncode from the teacher: gob handles the schema,
// s2 keeps the serialized form small since report snapshots of realistic
// fuzz targets are dominated by a handful of repeated mnemonic substrings.
func (s Snapshot) GobEncode() (b []byte, err error) {
	var buf bytes.Buffer
	writer := s2.NewWriter(&buf)
	defer func() {
		if cerr := writer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	if err := gob.NewEncoder(writer).Encode(s.Records); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode decodes a snapshot previously produced by GobEncode.
func (s *Snapshot) GobDecode(input []byte) error {
	buf := bytes.NewBuffer(input)
	return gob.NewDecoder(s2.NewReader(buf)).Decode(&s.Records)
}

// WriteSnapshotFile gob/s2-encodes snapshot and writes it to path, for use by
// cmd/covpass's -snapshot option and by tests that want to persist a
// known-good report.
func WriteSnapshotFile(path string, snapshot Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snapshot); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write snapshot file %q: %w", path, err)
	}
	return nil
}

// ReadSnapshotFile reads a snapshot previously written by WriteSnapshotFile.
func ReadSnapshotFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot file %q: %w", path, err)
	}
	var snapshot Snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot file %q: %w", path, err)
	}
	return snapshot, nil
}
