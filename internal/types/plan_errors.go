package types

import (
	"fmt"

	"github.com/lixdb/lix/internal/lixerr"
)

var (
	errPostprocessMultiStatement      = fmt.Errorf("%w: postprocess plan requires exactly one statement", lixerr.ErrPlannerInvariant)
	errPostprocessMutationCoexist     = fmt.Errorf("%w: postprocess plan cannot coexist with mutation rows", lixerr.ErrPlannerInvariant)
	errDeleteSelectionWithoutFallback = fmt.Errorf("%w: VtableDelete selection SQL requires effective_scope_fallback", lixerr.ErrPlannerInvariant)
	errMutationUpdateCoexist          = fmt.Errorf("%w: mutation rows and update validations cannot coexist", lixerr.ErrPlannerInvariant)
	errDuplicateMutation              = fmt.Errorf("%w: duplicate mutation row identity", lixerr.ErrVtableConstraint)
)
