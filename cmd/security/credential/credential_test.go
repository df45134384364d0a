package credential

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		submitted string
		stored    string
		want      bool
	}{
		{name: "equal", submitted: "abc", stored: "abc", want: true},
		{name: "different", submitted: "abc", stored: "abd", want: false},
		{name: "prefix", submitted: "ab", stored: "abc", want: false},
		{name: "empty stored fails closed", submitted: "", stored: "", want: false},
		{name: "empty submitted", submitted: "", stored: "abc", want: false},
		{name: "case sensitive", submitted: "ABC", stored: "abc", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Verify(tc.submitted, tc.stored))
		})
	}
}

func TestBootstrapHash(t *testing.T) {
	t.Parallel()

	// sha256("password")
	require.Equal(t, "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8", BootstrapHash("password"))
	require.True(t, Verify(BootstrapHash("password"), BootstrapHash("password")))
}
