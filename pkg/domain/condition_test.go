package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicprompt/loom/pkg/domain"
)

func TestCondition_Eval(t *testing.T) {
	snapshot := map[string]string{
		"genre": "photography",
		"mood":  "",
	}

	tests := []struct {
		name string
		cond *domain.Condition
		want bool
	}{
		{"nil is always true", nil, true},
		{"equals match", &domain.Condition{Kind: domain.CondEquals, Field: "genre", Value: "photography"}, true},
		{"equals mismatch", &domain.Condition{Kind: domain.CondEquals, Field: "genre", Value: "branding"}, false},
		{"equals on missing field", &domain.Condition{Kind: domain.CondEquals, Field: "camera", Value: "x"}, false},
		{"not_equals mismatch", &domain.Condition{Kind: domain.CondNotEquals, Field: "genre", Value: "branding"}, true},
		{"not_equals on missing field holds", &domain.Condition{Kind: domain.CondNotEquals, Field: "camera", Value: "x"}, true},
		{"present", &domain.Condition{Kind: domain.CondPresent, Field: "genre"}, true},
		{"present counts empty string", &domain.Condition{Kind: domain.CondPresent, Field: "mood"}, true},
		{"present missing", &domain.Condition{Kind: domain.CondPresent, Field: "camera"}, false},
		{"absent", &domain.Condition{Kind: domain.CondAbsent, Field: "camera"}, true},
		{"absent on present field", &domain.Condition{Kind: domain.CondAbsent, Field: "genre"}, false},
		{
			"all holds when every term holds",
			&domain.Condition{Kind: domain.CondAll, Terms: []*domain.Condition{
				{Kind: domain.CondPresent, Field: "genre"},
				{Kind: domain.CondEquals, Field: "genre", Value: "photography"},
			}},
			true,
		},
		{
			"all fails on one term",
			&domain.Condition{Kind: domain.CondAll, Terms: []*domain.Condition{
				{Kind: domain.CondPresent, Field: "genre"},
				{Kind: domain.CondPresent, Field: "camera"},
			}},
			false,
		},
		{
			"any holds on one term",
			&domain.Condition{Kind: domain.CondAny, Terms: []*domain.Condition{
				{Kind: domain.CondPresent, Field: "camera"},
				{Kind: domain.CondPresent, Field: "genre"},
			}},
			true,
		},
		{
			"not inverts",
			&domain.Condition{Kind: domain.CondNot, Term: &domain.Condition{Kind: domain.CondPresent, Field: "camera"}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cond.Eval(snapshot))
		})
	}
}

func TestCondition_EvalIsPure(t *testing.T) {
	snapshot := map[string]string{"genre": "photography"}
	cond := &domain.Condition{Kind: domain.CondAll, Terms: []*domain.Condition{
		{Kind: domain.CondEquals, Field: "genre", Value: "photography"},
		{Kind: domain.CondAbsent, Field: "camera"},
	}}

	first := cond.Eval(snapshot)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, cond.Eval(snapshot))
	}
	assert.Equal(t, map[string]string{"genre": "photography"}, snapshot)
}

func TestCondition_Validate(t *testing.T) {
	require.NoError(t, (&domain.Condition{Kind: domain.CondEquals, Field: "genre", Value: "x"}).Validate())
	require.NoError(t, (*domain.Condition)(nil).Validate())

	assert.Error(t, (&domain.Condition{Kind: domain.CondEquals}).Validate())
	assert.Error(t, (&domain.Condition{Kind: domain.CondPresent}).Validate())
	assert.Error(t, (&domain.Condition{Kind: domain.CondAll}).Validate())
	assert.Error(t, (&domain.Condition{Kind: domain.CondNot}).Validate())
	assert.Error(t, (&domain.Condition{Kind: "weird"}).Validate())
	assert.Error(t, (&domain.Condition{Kind: domain.CondAll, Terms: []*domain.Condition{
		{Kind: domain.CondPresent},
	}}).Validate())
}

func TestCondition_String(t *testing.T) {
	cond := &domain.Condition{Kind: domain.CondAny, Terms: []*domain.Condition{
		{Kind: domain.CondEquals, Field: "genre", Value: "photography"},
		{Kind: domain.CondNot, Term: &domain.Condition{Kind: domain.CondPresent, Field: "camera"}},
	}}
	assert.Equal(t, `(genre == "photography" or not camera present)`, cond.String())
	assert.Equal(t, "", (*domain.Condition)(nil).String())
}
