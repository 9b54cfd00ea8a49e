package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// certSpec describes one leaf certificate to mint off the generated
// CA: a filename stem, its subject, and the extended key usages it
// needs.
type certSpec struct {
	stem    string
	subject string
	usage   []x509.ExtKeyUsage
	dns     []string
	ips     []net.IP
}

// GenerateDevCerts creates a self-signed CA plus a server and client
// leaf certificate under outDir, for development and test
// deployments that want mTLS without a real PKI.
func GenerateDevCerts(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	caKey, caCert, caDER, err := mintCA()
	if err != nil {
		return err
	}
	if err := writeCert(outDir, "ca", caDER, nil); err != nil {
		return err
	}

	specs := []certSpec{
		{
			stem:    "server",
			subject: "tidekv server",
			usage:   []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			dns:     []string{"localhost"},
			ips:     []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		},
		{
			stem:    "client",
			subject: "tidekv client",
			usage:   []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		},
	}
	for i, spec := range specs {
		key, der, err := mintLeaf(spec, int64(i+2), caCert, caKey)
		if err != nil {
			return fmt.Errorf("generate %s cert: %w", spec.stem, err)
		}
		if err := writeCert(outDir, spec.stem, der, key); err != nil {
			return err
		}
	}
	return nil
}

func mintCA() (*rsa.PrivateKey, *x509.Certificate, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"tidekv CA"}},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, nil, err
	}
	return key, tmpl, der, nil
}

func mintLeaf(spec certSpec, serial int64, caCert *x509.Certificate, caKey *rsa.PrivateKey) (*rsa.PrivateKey, []byte, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{Organization: []string{spec.subject}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  spec.usage,
		DNSNames:     spec.dns,
		IPAddresses:  spec.ips,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, nil, err
	}
	return key, der, nil
}

func writeCert(outDir, stem string, der []byte, key *rsa.PrivateKey) error {
	if err := writePEMFile(filepath.Join(outDir, stem+".crt"), "CERTIFICATE", der); err != nil {
		return err
	}
	if key == nil {
		return nil
	}
	return writePEMFile(filepath.Join(outDir, stem+".key"), "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
}

func writePEMFile(path, blockType string, bytes []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pem.Encode(f, &pem.Block{Type: blockType, Bytes: bytes})
}
