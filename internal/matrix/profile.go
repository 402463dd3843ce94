package matrix

// Profile is one way of reaching the targets: directly or through a proxy.
type Profile struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Env         map[string]string `yaml:"env,omitempty"`         // nil for a direct connection
	HealthAddr  string            `yaml:"health_addr,omitempty"` // host:port probed before the run
}

// Direct reports whether the profile applies no proxy overrides.
func (p Profile) Direct() bool {
	return len(p.Env) == 0
}

func proxyEnv(url string) map[string]string {
	return map[string]string{
		"http_proxy":  url,
		"https_proxy": url,
	}
}

// DefaultProfiles returns the direct, squid and mitmproxy profiles.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Name:        "direct",
			Description: "Direct connection (no proxy)",
		},
		{
			Name:        "squid",
			Description: "Squid proxy with SSL bump",
			Env:         proxyEnv("http://squid_poc:3128"),
			HealthAddr:  "squid_poc:3128",
		},
		{
			Name:        "mitmproxy",
			Description: "mitmproxy with TLS interception",
			Env:         proxyEnv("http://mitmproxy_poc:8080"),
			HealthAddr:  "mitmproxy_poc:8080",
		},
	}
}

// DefaultTargets returns the URLs requested through every profile.
func DefaultTargets() []string {
	return []string{
		"http://httpbin.org/get",
		"https://httpbin.org/get",
		"http://example.com",
		"https://example.com",
	}
}
