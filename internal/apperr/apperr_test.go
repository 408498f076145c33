package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("bad"), KindValidation},
		{"wrapped permission", fmt.Errorf("create group: %w", Permission("no")), KindPermission},
		{"plain error", errors.New("boom"), KindInternal},
		{"configuration", Configuration("missing %s", "bucket"), KindConfiguration},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("insert media", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "insert media: connection reset", err.Error())
}

func TestMessageOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("memory not found"))
	assert.Equal(t, "memory not found", MessageOf(err))
	assert.Equal(t, "", MessageOf(errors.New("x")))
	assert.False(t, Is(nil, KindInternal))
}
