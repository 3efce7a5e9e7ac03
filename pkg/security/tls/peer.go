package tls

import (
	"crypto/x509"
	"net/http"
)

// PeerIdentity names the peer that presented a client certificate on r,
// taken from the certificate field selected by source: "subject.CN",
// "subject.OU", "subject.O" or "SAN". It is empty without a certificate.
func PeerIdentity(r *http.Request, source string) string {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return ""
	}
	return identity(r.TLS.PeerCertificates[0], source)
}

func identity(cert *x509.Certificate, source string) string {
	switch source {
	case "subject.CN", "":
		return cert.Subject.CommonName
	case "subject.OU":
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}
	case "subject.O":
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}
	case "SAN":
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}
	return ""
}
