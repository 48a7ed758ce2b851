// Package assets uploads metadata assets to IPFS through the HTTP RPC API
// of a Kubo node.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/chainsafe/contract-jobs/pkg/config"
)

const (
	ipfsScheme   = "ipfs://"
	maxAssetSize = 32 << 20
)

var (
	// ErrUnsupportedReference is returned for references that are neither
	// IPFS URIs, data URIs nor http(s) URLs
	ErrUnsupportedReference = errors.New("unsupported asset reference")
	// ErrAssetTooLarge is returned when an asset exceeds maxAssetSize
	ErrAssetTooLarge = errors.New("asset too large")
)

// IPFS adds assets to an IPFS node and returns their gateway URI
type IPFS struct {
	endpoint string
	gateway  string
	client   *http.Client
	logger   *zap.Logger
}

// addResponse is the body of /api/v0/add
type addResponse struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

// NewIPFS creates an uploader. The API address may be an http(s) URL or a
// multiaddr such as /ip4/127.0.0.1/tcp/5001.
func NewIPFS(cfg config.AssetsConfig, logger *zap.Logger) (*IPFS, error) {
	endpoint, err := apiEndpoint(cfg.APIURL)
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = ipfsScheme
	}
	return &IPFS{
		endpoint: endpoint,
		gateway:  gateway,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

func apiEndpoint(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("IPFS API address not configured")
	}
	if !strings.HasPrefix(addr, "/") {
		u, err := url.Parse(addr)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "", fmt.Errorf("invalid IPFS API URL %q", addr)
		}
		return strings.TrimRight(u.String(), "/"), nil
	}

	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return "", fmt.Errorf("invalid IPFS API multiaddr %q: %w", addr, err)
	}
	var host string
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if v, err := m.ValueForProtocol(code); err == nil {
			host = v
			break
		}
	}
	port, err := m.ValueForProtocol(ma.P_TCP)
	if host == "" || err != nil {
		return "", fmt.Errorf("IPFS API multiaddr %q needs a host and a tcp port", addr)
	}
	scheme := "http"
	if _, err := m.ValueForProtocol(ma.P_HTTPS); err == nil {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, port), nil
}

// Upload resolves ref to its content, adds it to IPFS and returns the
// gateway URI. References already on IPFS are returned unchanged.
func (c *IPFS) Upload(ctx context.Context, ref string) (string, error) {
	var (
		name string
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, ipfsScheme):
		root, _, _ := strings.Cut(strings.TrimPrefix(ref, ipfsScheme), "/")
		if _, err := cid.Decode(root); err != nil {
			return "", fmt.Errorf("invalid IPFS reference %q: %w", ref, err)
		}
		return ref, nil
	case strings.HasPrefix(ref, "data:"):
		name = "asset"
		data, err = decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		name, data, err = c.fetch(ctx, ref)
	default:
		return "", fmt.Errorf("%w: %.32q", ErrUnsupportedReference, ref)
	}
	if err != nil {
		return "", err
	}

	hash, err := c.add(ctx, name, data)
	if err != nil {
		return "", err
	}
	uri := c.uri(hash)
	c.logger.Info("Uploaded asset to IPFS",
		zap.String("cid", hash),
		zap.Int("size", len(data)),
		zap.String("uri", uri))
	return uri, nil
}

func (c *IPFS) uri(hash string) string {
	if strings.HasSuffix(c.gateway, "/") {
		return c.gateway + hash
	}
	return c.gateway + "/" + hash
}

func (c *IPFS) add(ctx context.Context, name string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/v0/add?pin=true&cid-version=1", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call IPFS add: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("IPFS add returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var added addResponse
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("failed to decode IPFS add response: %w", err)
	}
	parsed, err := cid.Decode(added.Hash)
	if err != nil {
		return "", fmt.Errorf("IPFS add returned invalid cid %q: %w", added.Hash, err)
	}
	return parsed.String(), nil
}

func (c *IPFS) fetch(ctx context.Context, ref string) (string, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("asset fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("failed to read asset: %w", err)
	}
	if len(data) > maxAssetSize {
		return "", nil, ErrAssetTooLarge
	}

	name := path.Base(req.URL.Path)
	if name == "/" || name == "." {
		name = "asset"
	}
	return name, data, nil
}

// decodeDataURI handles data:[<mediatype>][;base64],<data>
func decodeDataURI(ref string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("%w: malformed data URI", ErrUnsupportedReference)
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 data URI: %w", err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid data URI: %w", err)
	}
	return []byte(data), nil
}
