package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinProfile_Eligible(t *testing.T) {
	const cooldown = 86400

	cases := []struct {
		name       string
		lastSpinAt int64
		now        int64
		want       bool
	}{
		{"从未转过", 0, 1_700_000_000, true},
		{"冷却未满", 1_700_000_000, 1_700_000_000 + cooldown - 1, false},
		{"冷却刚满", 1_700_000_000, 1_700_000_000 + cooldown, true},
		{"时间为0转过一次后仍需冷却", 0, cooldown - 1, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := &SpinProfile{LastSpinAt: c.lastSpinAt}
			assert.Equal(t, c.want, p.Eligible(c.now, cooldown))
		})
	}
}
