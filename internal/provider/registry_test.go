package provider

import (
	"context"
	"testing"
)

// stubProvider is a marker implementation for registry identity checks.
type stubProvider struct{}

func (stubProvider) AccessToken(ctx context.Context, subjectID string) (string, error) {
	return "stub-token", nil
}

func TestActiveLazyDefault(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	p := Active()
	if p == nil {
		t.Fatal("Active() = nil, want a usable default provider")
	}
	if _, ok := p.(*StaticProvider); !ok {
		t.Errorf("Active() = %T, want the env-backed *StaticProvider default", p)
	}

	// The lazy default is cached, not rebuilt per call
	if Active() != p {
		t.Error("Active() returned a different provider on second call")
	}
}

func TestInitializeWins(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	custom := stubProvider{}
	Initialize(custom)

	if got := Active(); got != TokenProvider(custom) {
		t.Errorf("Active() = %v, want the initialized provider", got)
	}
}

func TestInitializeLastWriteWins(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &StaticProvider{}
	second := stubProvider{}
	Initialize(first)
	Initialize(second)

	if got := Active(); got != TokenProvider(second) {
		t.Errorf("Active() = %v, want the last initialized provider", got)
	}
}
