// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package waddrmgr

import (
	"fmt"
	"math"
)

// AccountName returns the account name for a given account number.
func AccountName(account uint32) string {
	return fmt.Sprintf("account-%d", account)
}

// checkIndexRange makes sure that count child indexes starting at start stay
// below the hardened range.
func checkIndexRange(start, count uint32) error {
	if uint64(start)+uint64(count) > math.MaxUint32 {
		return fmt.Errorf("%w: child index overflow: start=%d count=%d",
			ErrTooManyAddresses, start, count)
	}

	if count > 0 && start+count-1 >= hardenedKeyStart {
		return fmt.Errorf("%w: index range %d+%d reaches hardened "+
			"indexes", ErrTooManyAddresses, start, count)
	}

	return nil
}
