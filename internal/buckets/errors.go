package buckets

import (
	"errors"
	"fmt"
)

// ErrInvariant is wrapped by every Check failure.
var ErrInvariant = errors.New("buckets: invariant violated")

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvariant)
}
