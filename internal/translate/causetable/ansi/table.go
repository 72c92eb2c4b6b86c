// SPDX-License-Identifier: Apache-2.0

// Package ansi is the ANSI T1.113 cause table (spec §6 "5ESS, DMS-100"
// switch types use this variant family).
package ansi

import "github.com/tdmsip/gateway/internal/translate/causetable"

// Table is the ANSI-variant cause/status mapping. ANSI shares the base
// Q.850 cause set with the ITU variant for every cause this gateway maps;
// it is kept as its own table (rather than an alias) so a divergent entry
// can be added here without touching itu.Table.
var Table = causetable.New("ANSI", causetable.BaseEntries())
