package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskFieldRedactsSensitiveKeys(t *testing.T) {
	attr := MaskField("key", "1:5KQwrPbwdL6PhXujxW37FSSQZ1JiwsST4cqQzDeyXtP79zkvFD3")
	require.Equal(t, RedactedValue, attr.Value.String())

	attr = MaskField("block_number", "42")
	require.Equal(t, "42", attr.Value.String(), "allowlisted keys pass through")

	attr = MaskField("secret", "")
	require.Equal(t, "", attr.Value.String(), "empty values stay empty")
}

func TestRedactionAllowlistIsSortedAndClosed(t *testing.T) {
	keys := RedactionAllowlist()
	require.NotEmpty(t, keys)
	for i := 1; i < len(keys); i++ {
		require.Less(t, keys[i-1], keys[i])
	}
	for _, sensitive := range []string{"key", "private_key", "secret", "wif", "passphrase"} {
		require.False(t, IsAllowlisted(sensitive), "%q must never be allowlisted", sensitive)
	}
}
