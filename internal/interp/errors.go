package interp

import (
	"errors"

	"github.com/dop251/goja"

	"github.com/lunalab/luna-kernel/internal/model"
)

// Summarize classifies an Eval error. When the error is an interruption,
// it returns (nil, true); otherwise it returns an ErrorSummary suitable
// for embedding in an ExecutionResult.
func Summarize(err error) (*model.ErrorSummary, bool) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return nil, true
	}

	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &model.ErrorSummary{
			Kind:    "SyntaxError",
			Message: syntax.Error(),
			Trace:   syntax.Error(),
		}, false
	}

	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &model.ErrorSummary{
			Kind:    exceptionKind(exc),
			Message: exc.Value().String(),
			// Exception.String includes the JS stack, pointing at the
			// failure location within the submitted source.
			Trace: exc.String(),
		}, false
	}

	return &model.ErrorSummary{
		Kind:    "InternalError",
		Message: err.Error(),
		Trace:   err.Error(),
	}, false
}

// exceptionKind extracts the thrown error's class name ("TypeError",
// "RangeError", ...). Thrown non-Error values fall back to "Error".
func exceptionKind(exc *goja.Exception) string {
	if obj, ok := exc.Value().(*goja.Object); ok {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			return name.String()
		}
	}
	return "Error"
}
