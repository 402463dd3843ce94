package ca

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tturner/proxyja4/internal/artifact"
)

// SquidNoSSLConfig is the plain forward-proxy squid configuration written
// when no other config exists.
const SquidNoSSLConfig = `http_port 3128

access_log /var/log/squid/access.log
cache_log /var/log/squid/cache.log

cache_mem 256 MB
maximum_object_size 4096 KB

http_access allow all
`

// DefaultLayoutDirs are the runtime directories the compose stack mounts.
func DefaultLayoutDirs(root string) []string {
	return []string{
		filepath.Join(root, "configs", "squid", "runtime"),
		filepath.Join(root, "configs", "mitmproxy", "runtime"),
		filepath.Join(root, "logs"),
		filepath.Join(root, "captures"),
	}
}

// EnsureLayout creates the runtime directories under root and writes
// configs/squid/runtime/squid_no_ssl.conf, the config the squid container
// mounts, if it is absent. Existing files are left untouched.
func EnsureLayout(root string) ([]string, error) {
	var created []string
	for _, dir := range DefaultLayoutDirs(root) {
		if artifact.Exists(dir) {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return created, fmt.Errorf("create %s: %w", dir, err)
		}
		created = append(created, dir)
	}

	conf := filepath.Join(root, "configs", "squid", "runtime", "squid_no_ssl.conf")
	if !artifact.Exists(conf) {
		if err := artifact.WriteFile(conf, []byte(SquidNoSSLConfig), 0644); err != nil {
			return created, fmt.Errorf("write %s: %w", conf, err)
		}
		created = append(created, conf)
	}
	return created, nil
}
