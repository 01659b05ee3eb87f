package commands

import (
	"testing"

	"github.com/rashlabs/rash/pkg/engine"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		kind engine.Kind
		want int
	}{
		{engine.KindCliInvalid, 2},
		{engine.KindScriptSyntax, 2},
		{engine.KindDocoptMalformed, 2},
		{engine.KindDocoptNoMatch, 3},
		{engine.KindDocoptAmbiguous, 3},
		{engine.KindModuleFailed, 1},
		{engine.KindBecomeFailed, 1},
		{engine.KindTemplateUndefined, 1},
		{engine.KindAborted, 1},
		{engine.KindGracefulExit, 0},
	}
	for _, tt := range tests {
		if got := exitCode(engine.NewError(tt.kind, "x")); got != tt.want {
			t.Errorf("exitCode(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestParseEnvPairs(t *testing.T) {
	pairs, err := parseEnvPairs([]string{"A=1", "B=x=y"})
	if err != nil {
		t.Fatal(err)
	}
	if pairs[0] != [2]string{"A", "1"} || pairs[1] != [2]string{"B", "x=y"} {
		t.Errorf("pairs = %v", pairs)
	}

	if _, err := parseEnvPairs([]string{"NOVALUE"}); !engine.IsKind(err, engine.KindCliInvalid) {
		t.Fatalf("got %v", err)
	}
}
