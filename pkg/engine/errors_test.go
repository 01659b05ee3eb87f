package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindMatching(t *testing.T) {
	base := NewError(KindScriptSyntax, "bad task")
	wrapped := fmt.Errorf("loading: %w", base)

	if !IsKind(wrapped, KindScriptSyntax) {
		t.Error("kind must survive wrapping")
	}
	if KindOf(wrapped) != KindScriptSyntax {
		t.Errorf("KindOf = %s", KindOf(wrapped))
	}
	if !errors.Is(wrapped, NewError(KindScriptSyntax, "")) {
		t.Error("errors.Is must match on kind")
	}
	if errors.Is(wrapped, NewError(KindModuleFailed, "")) {
		t.Error("errors.Is must not match a different kind")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != KindModuleFailed {
		t.Error("unclassified errors are module failures")
	}
}

func TestWrapErrorMessage(t *testing.T) {
	cause := errors.New("cause")
	err := WrapError(KindBecomeFailed, "switch failed", cause)
	if err.Error() != "switch failed: cause" {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("cause must be unwrappable")
	}
}

func TestModuleResultAsValue(t *testing.T) {
	r := &ModuleResult{Changed: true, Output: "out"}
	v := r.AsValue()
	changed, _ := v.MapGet("changed")
	if b, _ := changed.AsBool(); !b {
		t.Errorf("changed = %v", changed)
	}
	out, _ := v.MapGet("output")
	if out.Stringify() != "out" {
		t.Errorf("output = %v", out)
	}
	extra, _ := v.MapGet("extra")
	if !extra.IsNull() {
		t.Errorf("empty extra must serialise as null, got %s", extra.Kind())
	}
	failed, _ := v.MapGet("failed")
	if b, _ := failed.AsBool(); b {
		t.Errorf("failed = %v", failed)
	}
}
