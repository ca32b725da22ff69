package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/objbridge/logger"
)

func SetFinalizer[T any](
	ctx context.Context,
	obj T,
	callback func(in T),
) {
	logger.Tracef(ctx, "SetFinalizer(%T)", obj)
	runtime.SetFinalizer(obj, callback)
}

func ClearFinalizer[T any](
	ctx context.Context,
	obj T,
) {
	logger.Tracef(ctx, "ClearFinalizer(%T)", obj)
	runtime.SetFinalizer(obj, nil)
}
