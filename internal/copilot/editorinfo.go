package copilot

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// EditorInfo identifies the host editor to the server.
type EditorInfo struct {
	Name    string
	Version string
}

// EditorPluginInfo identifies the plugin driving the server.
type EditorPluginInfo struct {
	Name    string
	Version string
}

// NetworkProxy configures the server's outbound proxy.
type NetworkProxy struct {
	Host               string
	Port               int
	RejectUnauthorized bool
	Username           string
	Password           string
}

// EditorConfiguration carries optional proxy and enterprise settings
// sent with setEditorInfo. Zero values are omitted from the request
// entirely rather than sent as null.
type EditorConfiguration struct {
	// ProxyHost and ProxyPort form the http.proxy entry.
	ProxyHost string
	ProxyPort int
	// ProxyStrictSSL controls TLS verification through the proxy.
	ProxyStrictSSL bool
	// EnterpriseURI points at a GitHub Enterprise instance.
	EnterpriseURI string
	// AuthProviderURL overrides the authentication provider.
	AuthProviderURL string
	// NetworkProxy is the richer proxy block, credentials included.
	NetworkProxy *NetworkProxy
}

// buildEditorInfoParams assembles the setEditorInfo request body.
// Optional blocks are only present when configured.
func buildEditorInfoParams(info EditorInfo, plugin EditorPluginInfo, cfg EditorConfiguration) (json.RawMessage, error) {
	body := []byte(`{}`)

	set := func(path string, value any) error {
		var err error
		body, err = sjson.SetBytes(body, path, value)
		if err != nil {
			return fmt.Errorf("build setEditorInfo %s: %w", path, err)
		}
		return nil
	}

	if err := set("editorInfo.name", info.Name); err != nil {
		return nil, err
	}
	if err := set("editorInfo.version", info.Version); err != nil {
		return nil, err
	}
	if err := set("editorPluginInfo.name", plugin.Name); err != nil {
		return nil, err
	}
	if err := set("editorPluginInfo.version", plugin.Version); err != nil {
		return nil, err
	}

	if cfg.ProxyHost != "" {
		proxy := cfg.ProxyHost
		if cfg.ProxyPort > 0 {
			proxy = fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort)
		}
		if err := set(`editorConfiguration.http.proxy`, proxy); err != nil {
			return nil, err
		}
		if err := set(`editorConfiguration.http.proxyStrictSSL`, cfg.ProxyStrictSSL); err != nil {
			return nil, err
		}
	}

	if cfg.EnterpriseURI != "" {
		if err := set(`editorConfiguration.github-enterprise.uri`, cfg.EnterpriseURI); err != nil {
			return nil, err
		}
	}

	if cfg.AuthProviderURL != "" {
		if err := set("authProvider.url", cfg.AuthProviderURL); err != nil {
			return nil, err
		}
	}

	if np := cfg.NetworkProxy; np != nil {
		if err := set("networkProxy.host", np.Host); err != nil {
			return nil, err
		}
		if err := set("networkProxy.port", np.Port); err != nil {
			return nil, err
		}
		if err := set("networkProxy.rejectUnauthorized", np.RejectUnauthorized); err != nil {
			return nil, err
		}
		if np.Username != "" {
			if err := set("networkProxy.username", np.Username); err != nil {
				return nil, err
			}
		}
		if np.Password != "" {
			if err := set("networkProxy.password", np.Password); err != nil {
				return nil, err
			}
		}
	}

	return body, nil
}
