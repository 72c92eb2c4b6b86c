// SPDX-License-Identifier: Apache-2.0

// Package etsi is the ETSI cause table (spec §6 "ETSI" switch type).
package etsi

import "github.com/tdmsip/gateway/internal/translate/causetable"

// Table is the ETSI-variant cause/status mapping.
var Table = causetable.New("ETSI", causetable.BaseEntries())
