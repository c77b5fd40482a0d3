// SPDX-FileCopyrightText: 2025 The Powerprof Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"strings"

	"github.com/prometheus/procfs"
)

// cpuModelName returns the model name of the first processor listed in
// procPath's cpuinfo. Returns "" when it cannot be determined; callers
// treat the model as optional metadata.
func cpuModelName(procPath string) string {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return ""
	}
	infos, err := fs.CPUInfo()
	if err != nil || len(infos) == 0 {
		return ""
	}
	return strings.TrimSpace(infos[0].ModelName)
}
