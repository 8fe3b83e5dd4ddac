package token

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/api/auth"
	"github.com/omniface/omniface-go/internal/conf"
)

func TestTokenCommand(t *testing.T) {
	settings := &conf.Settings{}
	settings.Security.JWT = conf.JWTSettings{Secret: "cli-secret", Issuer: "omniface"}

	var out bytes.Buffer
	cmd := Command(settings)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"12"})
	require.NoError(t, cmd.Execute())

	tokens, err := auth.NewTokenService(settings.Security.JWT)
	require.NoError(t, err)
	tenantID, err := tokens.Validate(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, uint(12), tenantID)
}

func TestTokenCommandRejectsBadInput(t *testing.T) {
	settings := &conf.Settings{}
	settings.Security.JWT.Secret = "cli-secret"

	for _, arg := range []string{"0", "-3", "acme"} {
		cmd := Command(settings)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{arg})
		assert.Error(t, cmd.Execute(), arg)
	}

	cmd := Command(&conf.Settings{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"1"})
	assert.Error(t, cmd.Execute(), "no secret configured")
}
