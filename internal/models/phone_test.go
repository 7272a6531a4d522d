package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want string
	}{
		{"998901234567", "+998901234567"},
		{"+998 90 123-45-67", "+998901234567"},
		{" +1 (555) 010-9999 ", "+15550109999"},
	} {
		got, err := NormalizePhone(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
	}

	for _, raw := range []string{"", "12345", "phone", "+99890+1234567", "1234567890123456"} {
		_, err := NormalizePhone(raw)
		assert.ErrorIs(t, err, ErrInvalidPhone, raw)
	}
}
