package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentials(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeCredentials(t, `
- src:
    server: imap.old.example
    user: alice@old.example
    password: hunter2
  dst:
    server: imap.new.example
    port: 1993
    user: alice@new.example
    token: ya29.token
    security: starttls
- src:
    server: imap.old.example
    user: bob@old.example
    password: swordfish
    security: none
  export:
    dir: ./backup/bob
`)

	accounts, err := Load(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, "imap.old.example:993", accounts[0].Src.Addr())
	assert.Equal(t, SecurityTLS, accounts[0].Src.Security)
	require.NotNil(t, accounts[0].Dst)
	assert.Equal(t, "imap.new.example:1993", accounts[0].Dst.Addr())
	assert.Equal(t, "ya29.token", accounts[0].Dst.Token)

	assert.Equal(t, 143, accounts[1].Src.Port)
	assert.Nil(t, accounts[1].Dst)
	require.NotNil(t, accounts[1].Export)
	assert.Equal(t, "./backup/bob", accounts[1].Export.Dir)
}

func TestLoadJSONArray(t *testing.T) {
	// The original credential files were JSON; yaml.v3 accepts them as-is.
	path := writeCredentials(t, `[
  {
    "src": {"server": "mail.a.example", "user": "a@a.example", "password": "pw1"},
    "dst": {"server": "mail.b.example", "user": "a@b.example", "password": "pw2"}
  }
]`)

	accounts, err := Load(path)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "mail.a.example", accounts[0].Src.Server)
	assert.Equal(t, 993, accounts[0].Dst.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEmpty(t *testing.T) {
	_, err := Load(writeCredentials(t, "[]"))
	require.Error(t, err)
}

func TestLoadValidation(t *testing.T) {
	dst := `
  dst:
    server: imap.new.example
    user: x@new.example
    password: pw
`
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing server",
			content: `
- src:
    user: a@x
    password: pw
` + dst,
			wantErr: "server is required",
		},
		{
			name: "missing secret",
			content: `
- src:
    server: imap.x
    user: a@x
` + dst,
			wantErr: "password or an oauth token",
		},
		{
			name: "password and token",
			content: `
- src:
    server: imap.x
    user: a@x
    password: pw
    token: tok
` + dst,
			wantErr: "mutually exclusive",
		},
		{
			name: "bad security mode",
			content: `
- src:
    server: imap.x
    user: a@x
    password: pw
    security: ssl3
` + dst,
			wantErr: "unknown security mode",
		},
		{
			name: "no destination at all",
			content: `
- src:
    server: imap.x
    user: a@x
    password: pw
`,
			wantErr: "dst server or an export section",
		},
		{
			name: "dst and export together",
			content: `
- src:
    server: imap.x
    user: a@x
    password: pw
  export:
    dir: ./out
` + dst,
			wantErr: "mutually exclusive",
		},
		{
			name: "export without dir",
			content: `
- src:
    server: imap.x
    user: a@x
    password: pw
  export:
    upload:
      host: h
      user: u
      password: p
      path: /srv
`,
			wantErr: "dir is required",
		},
		{
			name: "incomplete upload",
			content: `
- src:
    server: imap.x
    user: a@x
    password: pw
  export:
    dir: ./out
    upload:
      host: h
`,
			wantErr: "upload needs",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeCredentials(t, tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestUploadPortDefault(t *testing.T) {
	path := writeCredentials(t, `
- src:
    server: imap.x
    user: a@x
    password: pw
  export:
    dir: ./out
    upload:
      host: backup.example
      user: backup
      password: pw
      path: /srv/mail
`)

	accounts, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, accounts[0].Export.Upload)
	assert.Equal(t, 22, accounts[0].Export.Upload.Port)
}
