// SPDX-License-Identifier: Apache-2.0

// Package itu is the ITU-T Q.850 cause table (spec §4.G, §6 "ETSI, NI2,
// 5ESS, DMS-100, AXE, EWSD" variant family rooted in the ITU base set).
package itu

import "github.com/tdmsip/gateway/internal/translate/causetable"

// Table is the ITU-variant cause/status mapping, built once at package
// init and never mutated (spec §5 rule-set immutability).
var Table = causetable.New("ITU", causetable.BaseEntries())
