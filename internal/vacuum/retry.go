// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vacuum

import (
	"fmt"
	"log/slog"
)

// retry calls fn up to attempts times and stops at the first success.
// It returns the last error when every attempt failed.
func retry(op string, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		slog.Debug("Hardware call failed", "op", op, "attempt", i+1, "err", err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
}
