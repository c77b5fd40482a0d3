// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCPUModelName(t *testing.T) {
	procRoot := t.TempDir()
	cpuinfo := "processor\t: 0\n" +
		"vendor_id\t: GenuineIntel\n" +
		"model name\t: Intel(R) Xeon(R) Gold 6338N CPU @ 2.20GHz\n"
	require.NoError(t, os.WriteFile(filepath.Join(procRoot, "cpuinfo"), []byte(cpuinfo), 0o600))

	assert.Equal(t, "Intel(R) Xeon(R) Gold 6338N CPU @ 2.20GHz", cpuModelName(procRoot))
}

func TestCPUModelNameMissingProc(t *testing.T) {
	assert.Empty(t, cpuModelName(filepath.Join(t.TempDir(), "does-not-exist")))
}

func TestCPUModelNameGarbage(t *testing.T) {
	procRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(procRoot, "cpuinfo"), []byte("not cpuinfo\n"), 0o600))

	assert.Empty(t, cpuModelName(procRoot))
}
