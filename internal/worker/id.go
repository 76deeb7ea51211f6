// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package worker

import "sync/atomic"

// idCounter hands out process-wide handler ids. Ids are monotonically
// increasing, never reset, and carry no meaning beyond log correlation.
var idCounter atomic.Int64

func nextID() int64 {
	return idCounter.Add(1)
}
