// Package ext implements the two extensions the server advertises via
// scope.extensions (component C9): "tls" connection introspection and
// "fullflush", a synchronous write-buffer flush hook. Applications must
// not assume an unlisted extension is available.
package ext

import (
	"crypto/tls"
	"net"
)

// TLSInfo is the value advertised under the "tls" extension key when a
// connection is terminated over TLS.
type TLSInfo struct {
	Version        string
	CipherSuite    string
	ClientCertName string
}

// Build constructs the extensions map for one accepted connection.
// advertiseFullFlush controls whether this worker offers the fullflush
// extension (a deployment-wide setting, not a per-connection one).
func Build(nc net.Conn, advertiseFullFlush bool) map[string]any {
	extensions := make(map[string]any)

	if tc, ok := nc.(*tls.Conn); ok {
		st := tc.ConnectionState()
		info := TLSInfo{
			Version:     versionName(st.Version),
			CipherSuite: tls.CipherSuiteName(st.CipherSuite),
		}
		if len(st.PeerCertificates) > 0 {
			info.ClientCertName = st.PeerCertificates[0].Subject.CommonName
		}
		extensions["tls"] = info
	}

	if advertiseFullFlush {
		extensions["fullflush"] = true
	}

	return extensions
}

func versionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1.0"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return "unknown"
	}
}
