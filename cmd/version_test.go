package cmd

import (
	"bytes"
	"testing"

	"github.com/haierkeys/notegpt-sync-service/internal/app"
	pkgapp "github.com/haierkeys/notegpt-sync-service/pkg/app"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd_JSON(t *testing.T) {
	t.Cleanup(func() { versionJSON = false })

	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionJSON = true
	require.NoError(t, versionCmd.RunE(versionCmd, nil))

	var info pkgapp.VersionInfo
	require.NoError(t, sonic.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, app.Version, info.Version)
}

func TestVersionCmd_Text(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	require.NoError(t, versionCmd.RunE(versionCmd, nil))
	assert.Contains(t, out.String(), app.Name+" v"+app.Version)
}
