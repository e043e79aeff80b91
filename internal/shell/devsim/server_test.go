package devsim_test

import (
	"context"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/castforge/castforge/internal/core/domain"
	"github.com/castforge/castforge/internal/shell/device"
	"github.com/castforge/castforge/internal/shell/devsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startSim serves a simulator and returns a device client wired to its port.
func startSim(t *testing.T, config devsim.Config) (*devsim.Simulator, *device.Client, string) {
	t.Helper()
	sim := devsim.New(config, nil)
	server := httptest.NewServer(sim.Handler())
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client := device.NewClient(device.ClientConfig{Port: port, StagingDir: t.TempDir()}, nil)
	return sim, client, host
}

func writeBuildDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest"), []byte("title=app\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "source"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "source", "main.brs"), []byte("sub main()\nend sub\n"), 0o644))
	return dir
}

func TestSimulator_ServesInfoDocument(t *testing.T) {
	_, client, host := startSim(t, devsim.Config{Name: "Test Box", Serial: "T-1"})

	dev, err := client.FetchInfo(context.Background(), host)

	require.NoError(t, err)
	assert.Equal(t, "Test Box", dev.Name)
	assert.Equal(t, "T-1", dev.Serial)
	assert.Equal(t, "simulator", dev.DeviceClass)
}

func TestSimulator_HomeReturnsAccepted(t *testing.T) {
	_, client, host := startSim(t, devsim.Config{})

	status, err := client.Home(context.Background(), host)

	require.NoError(t, err)
	assert.Equal(t, 202, status)
}

func TestSimulator_RejectsBadCredential(t *testing.T) {
	_, client, host := startSim(t, devsim.Config{Credential: "right"})
	dev := domain.AuthorizedDevice{Device: domain.Device{Address: host}, Credential: "wrong"}

	err := client.Install(context.Background(), dev, strings.NewReader("payload"), "app.zip")

	var statusErr *device.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.IsAuthStatus())
}

func TestSimulator_AcceptsCredential(t *testing.T) {
	_, client, host := startSim(t, devsim.Config{Credential: "secret"})
	auth := device.NewAuthenticator(client, nil)

	assert.True(t, auth.TestCredential(context.Background(), host, "secret"))
	assert.False(t, auth.TestCredential(context.Background(), host, "other"))
}

func TestSimulator_DeployAndSignRoundTrip(t *testing.T) {
	sim, client, host := startSim(t, devsim.Config{Credential: "secret"})
	dev := domain.AuthorizedDevice{Device: domain.Device{Address: host}, Credential: "secret"}

	staged, err := client.DeployAndSign(context.Background(), dev, writeBuildDir(t), "myapp", "key-1")

	require.NoError(t, err)
	assert.True(t, sim.Installed())
	data, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, "signed-package:myapp", string(data))
}

func TestSimulator_PackageWithoutInstallFails(t *testing.T) {
	_, client, host := startSim(t, devsim.Config{Credential: "secret"})
	dev := domain.AuthorizedDevice{Device: domain.Device{Address: host}, Credential: "secret"}

	_, err := client.PackageOnly(context.Background(), dev, "myapp", "key-1")

	var statusErr *device.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 400, statusErr.Status)
}

func TestSimulator_RekeyAdoptsAndEnforcesKey(t *testing.T) {
	_, client, host := startSim(t, devsim.Config{Credential: "secret"})
	dev := domain.AuthorizedDevice{Device: domain.Device{Address: host}, Credential: "secret"}

	refPkg := filepath.Join(t.TempDir(), "ref.pkg")
	require.NoError(t, os.WriteFile(refPkg, []byte("signed"), 0o644))

	// First rekey adopts the key; a package request with a different key is
	// then refused.
	require.NoError(t, client.Rekey(context.Background(), dev, "key-A", refPkg))
	_, err := client.DeployAndSign(context.Background(), dev, writeBuildDir(t), "myapp", "key-B")

	var statusErr *device.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 403, statusErr.Status)
}

func TestSimulator_RekeyMismatchForbidden(t *testing.T) {
	_, client, host := startSim(t, devsim.Config{Credential: "secret", SignKey: "fixed"})
	dev := domain.AuthorizedDevice{Device: domain.Device{Address: host}, Credential: "secret"}

	refPkg := filepath.Join(t.TempDir(), "ref.pkg")
	require.NoError(t, os.WriteFile(refPkg, []byte("signed"), 0o644))

	err := client.Rekey(context.Background(), dev, "different", refPkg)

	var statusErr *device.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.IsAuthStatus())
}
