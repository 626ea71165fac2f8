package copilot

import (
	"testing"

	"github.com/tidwall/gjson"
)

func buildParams(t *testing.T, cfg EditorConfiguration) string {
	t.Helper()
	body, err := buildEditorInfoParams(
		EditorInfo{Name: "copilot-bridge", Version: "0.1.0"},
		EditorPluginInfo{Name: "copilot-bridge", Version: "0.1.0"},
		cfg,
	)
	if err != nil {
		t.Fatalf("buildEditorInfoParams() error = %v", err)
	}
	return string(body)
}

func TestEditorInfoParamsMinimal(t *testing.T) {
	body := buildParams(t, EditorConfiguration{})

	if got := gjson.Get(body, "editorInfo.name").String(); got != "copilot-bridge" {
		t.Errorf("editorInfo.name = %q", got)
	}
	if got := gjson.Get(body, "editorPluginInfo.version").String(); got != "0.1.0" {
		t.Errorf("editorPluginInfo.version = %q", got)
	}

	// Optional blocks must be absent entirely, not present as null.
	for _, path := range []string{"editorConfiguration", "authProvider", "networkProxy"} {
		if gjson.Get(body, path).Exists() {
			t.Errorf("%s present in minimal params: %s", path, body)
		}
	}
}

func TestEditorInfoParamsProxy(t *testing.T) {
	body := buildParams(t, EditorConfiguration{
		ProxyHost:      "proxy.corp.example",
		ProxyPort:      8888,
		ProxyStrictSSL: true,
	})

	if got := gjson.Get(body, "editorConfiguration.http.proxy").String(); got != "proxy.corp.example:8888" {
		t.Errorf("http.proxy = %q", got)
	}
	if !gjson.Get(body, "editorConfiguration.http.proxyStrictSSL").Bool() {
		t.Error("proxyStrictSSL not set")
	}
}

func TestEditorInfoParamsEnterprise(t *testing.T) {
	body := buildParams(t, EditorConfiguration{
		EnterpriseURI:   "https://github.corp.example",
		AuthProviderURL: "https://auth.corp.example",
	})

	got := gjson.Get(body, `editorConfiguration.github-enterprise.uri`).String()
	if got != "https://github.corp.example" {
		t.Errorf("github-enterprise.uri = %q", got)
	}
	if got := gjson.Get(body, "authProvider.url").String(); got != "https://auth.corp.example" {
		t.Errorf("authProvider.url = %q", got)
	}
	if gjson.Get(body, "editorConfiguration.http").Exists() {
		t.Error("http block present without proxy configured")
	}
}

func TestEditorInfoParamsNetworkProxy(t *testing.T) {
	body := buildParams(t, EditorConfiguration{
		NetworkProxy: &NetworkProxy{
			Host:               "10.0.0.1",
			Port:               3128,
			RejectUnauthorized: true,
		},
	})

	if got := gjson.Get(body, "networkProxy.host").String(); got != "10.0.0.1" {
		t.Errorf("networkProxy.host = %q", got)
	}
	if got := gjson.Get(body, "networkProxy.port").Int(); got != 3128 {
		t.Errorf("networkProxy.port = %d", got)
	}

	// Credentials are omitted when unset, never sent as empty strings.
	for _, path := range []string{"networkProxy.username", "networkProxy.password"} {
		if gjson.Get(body, path).Exists() {
			t.Errorf("%s present without credentials: %s", path, body)
		}
	}
}

func TestEditorInfoParamsNetworkProxyCredentials(t *testing.T) {
	body := buildParams(t, EditorConfiguration{
		NetworkProxy: &NetworkProxy{
			Host:     "10.0.0.1",
			Port:     3128,
			Username: "svc",
			Password: "hunter2",
		},
	})

	if got := gjson.Get(body, "networkProxy.username").String(); got != "svc" {
		t.Errorf("networkProxy.username = %q", got)
	}
	if got := gjson.Get(body, "networkProxy.password").String(); got != "hunter2" {
		t.Errorf("networkProxy.password = %q", got)
	}
}
