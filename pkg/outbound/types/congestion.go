/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package types

import "fmt"

// CongestionLevel summarizes the ping and bandwidth pressure observed on a connection.
type CongestionLevel int

const (
	CongestionNone CongestionLevel = iota
	CongestionLow
	CongestionMedium
	CongestionHigh
	CongestionSevere
)

// NumCongestionLevels is the number of congestion levels.
const NumCongestionLevels = int(CongestionSevere) + 1

// CongestionLevels returns every level from None to Severe.
func CongestionLevels() []CongestionLevel {
	return []CongestionLevel{CongestionNone, CongestionLow, CongestionMedium, CongestionHigh, CongestionSevere}
}

func (l CongestionLevel) String() string {
	switch l {
	case CongestionNone:
		return "none"
	case CongestionLow:
		return "low"
	case CongestionMedium:
		return "medium"
	case CongestionHigh:
		return "high"
	case CongestionSevere:
		return "severe"
	default:
		return fmt.Sprintf("unknown(%d)", int(l))
	}
}

// MaxCongestion returns the more severe of two levels.
func MaxCongestion(a, b CongestionLevel) CongestionLevel {
	if a > b {
		return a
	}
	return b
}

// ConnectionStats is the telemetry view of one connection.
type ConnectionStats struct {
	// PingMillis is the most recent round-trip sample.
	PingMillis int64 `json:"pingMillis"`
	// BandwidthBytesPerSec is the rolling estimate over the last completed one second window.
	BandwidthBytesPerSec int64           `json:"bandwidthBytesPerSec"`
	Level                CongestionLevel `json:"level"`
}

// MarshalText encodes the level by name.
func (l CongestionLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
