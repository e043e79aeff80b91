// Package device provides the HTTP client for a controllable device: the
// info query used by discovery and authentication, home navigation, and the
// installer endpoints (rekey, deploy, package) that back the deployment
// pipeline.
package device

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/castforge/castforge/internal/core/domain"
)

// =============================================================================
// Endpoints
// =============================================================================

const (
	// DefaultPort is the device's well-known control port.
	DefaultPort = 8060

	infoPath    = "/query/device-info"
	homePath    = "/keypress/home"
	statusPath  = "/installer/status"
	installPath = "/plugin_install"
	packagePath = "/plugin_package"

	// devUser is the fixed username for the installer's basic auth; only
	// the password (the device credential) varies.
	devUser = "dev"
)

// InfoMarker identifies a device-info response body. The subnet probe uses it
// to tell devices apart from arbitrary HTTP servers answering on the port.
const InfoMarker = "<device-info"

// =============================================================================
// Errors
// =============================================================================

// StatusError reports an unexpected HTTP status from a device endpoint.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: device returned status %d", e.Op, e.Status)
}

// IsAuthStatus reports whether the status means the credential was rejected.
func (e *StatusError) IsAuthStatus() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// =============================================================================
// Device Info Document
// =============================================================================

// infoDoc mirrors the XML document served at the device-info endpoint.
type infoDoc struct {
	XMLName         xml.Name `xml:"device-info"`
	FriendlyName    string   `xml:"friendly-name"`
	ModelName       string   `xml:"model-name"`
	ModelNumber     string   `xml:"model-number"`
	SerialNumber    string   `xml:"serial-number"`
	SoftwareVersion string   `xml:"software-version"`
	DeviceClass     string   `xml:"device-class"`
}

// =============================================================================
// Client
// =============================================================================

// ClientConfig configures the device client.
type ClientConfig struct {
	// Port is the device control port. Default: DefaultPort.
	Port int

	// InfoTimeout bounds the device-info fetch. Default: 3 seconds.
	InfoTimeout time.Duration

	// OpTimeout bounds installer operations (rekey, install, package).
	// Default: 5 minutes; the pipeline applies its own race on top.
	OpTimeout time.Duration

	// StagingDir is where downloaded artifacts are written before
	// relocation. Default: os.TempDir()/castforge.
	StagingDir string
}

// Client talks to one or more devices over HTTP. It is safe for concurrent
// use; per-device state lives in the arguments, not the client.
type Client struct {
	config ClientConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a device client.
func NewClient(config ClientConfig, logger *slog.Logger) *Client {
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.InfoTimeout == 0 {
		config.InfoTimeout = 3 * time.Second
	}
	if config.OpTimeout == 0 {
		config.OpTimeout = 5 * time.Minute
	}
	if config.StagingDir == "" {
		config.StagingDir = filepath.Join(os.TempDir(), "castforge")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config: config,
		// Timeouts are applied per call via context; the client itself
		// stays unbounded so long package downloads are not cut off.
		http:   &http.Client{},
		logger: logger.With("component", "device"),
	}
}

func (c *Client) baseURL(address string) string {
	return fmt.Sprintf("http://%s:%d", address, c.config.Port)
}

// =============================================================================
// Info Query
// =============================================================================

// FetchInfo retrieves and parses the device-info document for an address.
func (c *Client) FetchInfo(ctx context.Context, address string) (domain.Device, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.InfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL(address)+infoPath, nil)
	if err != nil {
		return domain.Device{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Device{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Device{}, &StatusError{Op: "FetchInfo", Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.Device{}, err
	}
	return ParseInfo(body, address)
}

// ParseInfo parses a device-info document. The address seeds the record and
// the synthesized fallback name.
func ParseInfo(data []byte, address string) (domain.Device, error) {
	var doc infoDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return domain.Device{}, fmt.Errorf("parse device-info: %w", err)
	}

	name := doc.FriendlyName
	if name == "" {
		name = domain.SynthesizeName(address)
	}
	model := doc.ModelName
	if model == "" {
		model = doc.ModelNumber
	}

	return domain.Device{
		Address:         address,
		Name:            name,
		Model:           model,
		Serial:          doc.SerialNumber,
		SoftwareVersion: doc.SoftwareVersion,
		DeviceClass:     doc.DeviceClass,
	}, nil
}

// =============================================================================
// Home Navigation
// =============================================================================

// Home sends the device to its idle/home state. It returns the HTTP status
// so the caller can decide how soft a non-200 is; a transport-level failure
// returns an error and status 0.
func (c *Client) Home(ctx context.Context, address string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.InfoTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(address)+homePath, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// =============================================================================
// Installer Operations
// =============================================================================

// Rekey re-authorizes the device: it submits the signing credential together
// with a previously-signed reference package so future artifacts signed with
// the same credential are accepted.
func (c *Client) Rekey(ctx context.Context, dev domain.AuthorizedDevice, signKey, refPackagePath string) error {
	pkg, err := os.Open(refPackagePath)
	if err != nil {
		return fmt.Errorf("open reference package: %w", err)
	}
	defer pkg.Close()

	fields := map[string]string{
		"mysubmit": "Rekey",
		"passwd":   signKey,
	}
	resp, err := c.postMultipart(ctx, dev, installPath, fields, "archive", filepath.Base(refPackagePath), pkg)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "Rekey", Status: resp.StatusCode}
	}
	return nil
}

// Install pushes a zipped build to the device's installer.
func (c *Client) Install(ctx context.Context, dev domain.AuthorizedDevice, archive io.Reader, archiveName string) error {
	fields := map[string]string{"mysubmit": "Install"}
	resp, err := c.postMultipart(ctx, dev, installPath, fields, "archive", archiveName, archive)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "Install", Status: resp.StatusCode}
	}
	return nil
}

// CreatePackage asks the device to sign the installed app and downloads the
// artifact into the staging directory. Returns the staged artifact path.
func (c *Client) CreatePackage(ctx context.Context, dev domain.AuthorizedDevice, appName, signKey string) (string, error) {
	fields := map[string]string{
		"mysubmit": "Package",
		"app_name": appName,
		"passwd":   signKey,
	}
	resp, err := c.postMultipart(ctx, dev, packagePath, fields, "", "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", &StatusError{Op: "CreatePackage", Status: resp.StatusCode}
	}

	if err := os.MkdirAll(c.config.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	staged := filepath.Join(c.config.StagingDir, appName+".pkg")
	out, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("create staged artifact: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(staged)
		return "", fmt.Errorf("download artifact: %w", err)
	}

	c.logger.Debug("artifact staged", "path", staged)
	return staged, nil
}

// postMultipart submits an authenticated multipart form. fileField may be
// empty when the form carries no file part.
func (c *Client) postMultipart(ctx context.Context, dev domain.AuthorizedDevice, path string, fields map[string]string, fileField, fileName string, file io.Reader) (*http.Response, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.OpTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(dev.Address)+path, &body)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.SetBasicAuth(devUser, dev.Credential)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the timeout's lifetime to the response body.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
