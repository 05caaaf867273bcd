// SPDX-FileCopyrightText: 2025 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package helpers

// RsbuilderVersion is the version of rsbuilder. It is set at build time
// with "-ldflags -X".
var RsbuilderVersion = "0.0.0-dev"
