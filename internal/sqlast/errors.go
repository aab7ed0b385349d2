package sqlast

import (
	"fmt"

	"github.com/lixdb/lix/internal/lixerr"
)

var errPassLimitExceeded = fmt.Errorf("%w: rewrite pass did not reach a fixed point", lixerr.ErrPlannerInvariant)
