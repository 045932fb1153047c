package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"

	"gitee.com/Trisia/gotlcp/tlcp"
	"github.com/emmansun/gmsm/smx509"
)

// Fixed certificate filenames under the client-certificate directory.
const (
	stdCertFile  = "client.crt"
	stdKeyFile   = "client.key"
	encCertFile  = "client_enc.crt"
	encKeyFile   = "client_enc.key"
	signCertFile = "client_sign.crt"
	signKeyFile  = "client_sign.key"
)

// clientCertFiles derives the certificate/key paths for a mode: one pair for
// standard TLS, the encryption and signature pairs for TLCP.
func clientCertFiles(dir string, tlcpMode bool) []string {
	if tlcpMode {
		return []string{
			filepath.Join(dir, encCertFile),
			filepath.Join(dir, encKeyFile),
			filepath.Join(dir, signCertFile),
			filepath.Join(dir, signKeyFile),
		}
	}
	return []string{
		filepath.Join(dir, stdCertFile),
		filepath.Join(dir, stdKeyFile),
	}
}

func configureTLS(plan *Plan, params *Params) error {
	if params.TLCP {
		cfg, err := buildTLCPConfig(params)
		if err != nil {
			return err
		}
		plan.TLCPConf = cfg
		return nil
	}
	cfg, err := buildTLSConfig(params)
	if err != nil {
		return err
	}
	plan.TLS = cfg
	return nil
}

// buildTLSConfig configures standard TLS. Peer verification, when enabled,
// deliberately checks the chain only and never the hostname: the stack
// always sets InsecureSkipVerify and re-verifies via VerifyPeerCertificate.
// This relaxed mode suits pinned internal deployments but weakens MITM
// protection; callers wanting full verification front their own transport.
func buildTLSConfig(params *Params) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS12,
	}

	if params.VerifyServer {
		roots, err := loadRootPool(params.CAPath)
		if err != nil {
			return nil, err
		}
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			certs := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return err
				}
				certs = append(certs, cert)
			}
			if len(certs) == 0 {
				return &Error{Code: CodePeerFailedVerification, Message: "server presented no certificate"}
			}
			opts := x509.VerifyOptions{
				Roots:         roots,
				Intermediates: x509.NewCertPool(),
				KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
			}
			for _, cert := range certs[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := certs[0].Verify(opts)
			return err
		}
	}

	if params.ClientCertDir != "" {
		files := clientCertFiles(params.ClientCertDir, false)
		pair, err := tls.LoadX509KeyPair(files[0], files[1])
		if err != nil {
			return nil, &Error{Code: CodeSSLCertProblem, Message: fmt.Sprintf("could not load client certificate: %v", err)}
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	return cfg, nil
}

// buildTLCPConfig configures the national-cryptography protocol. Client
// authentication requires two certificate/key pairs, the signature pair
// first and the encryption pair second. Hostname verification follows the
// same chain-only rule as standard TLS.
func buildTLCPConfig(params *Params) (*tlcp.Config, error) {
	cfg := &tlcp.Config{
		InsecureSkipVerify: true,
	}

	if params.VerifyServer {
		roots, err := loadTLCPRootPool(params.CAPath)
		if err != nil {
			return nil, err
		}
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*smx509.Certificate) error {
			certs := make([]*smx509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := smx509.ParseCertificate(raw)
				if err != nil {
					return err
				}
				certs = append(certs, cert)
			}
			if len(certs) == 0 {
				return &Error{Code: CodePeerFailedVerification, Message: "server presented no certificate"}
			}
			opts := smx509.VerifyOptions{
				Roots:         roots,
				Intermediates: smx509.NewCertPool(),
			}
			for _, cert := range certs[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := certs[0].Verify(opts)
			return err
		}
	}

	if params.ClientCertDir != "" {
		files := clientCertFiles(params.ClientCertDir, true)
		enc, err := tlcp.LoadX509KeyPair(files[0], files[1])
		if err != nil {
			return nil, &Error{Code: CodeSSLCertProblem, Message: fmt.Sprintf("could not load encryption certificate: %v", err)}
		}
		sign, err := tlcp.LoadX509KeyPair(files[2], files[3])
		if err != nil {
			return nil, &Error{Code: CodeSSLCertProblem, Message: fmt.Sprintf("could not load signature certificate: %v", err)}
		}
		cfg.Certificates = []tlcp.Certificate{sign, enc}
	}

	return cfg, nil
}

// loadRootPool builds the trust anchor pool: the configured CA file when
// given, otherwise the system roots.
func loadRootPool(caPath string) (*x509.CertPool, error) {
	if caPath == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return x509.NewCertPool(), nil
		}
		return pool, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, &Error{Code: CodeSSLCACertBadFile, Message: fmt.Sprintf("could not read CA file: %v", err)}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &Error{Code: CodeSSLCACertBadFile, Message: "no certificates found in CA file"}
	}
	return pool, nil
}

func loadTLCPRootPool(caPath string) (*smx509.CertPool, error) {
	pool := smx509.NewCertPool()
	if caPath == "" {
		return pool, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, &Error{Code: CodeSSLCACertBadFile, Message: fmt.Sprintf("could not read CA file: %v", err)}
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, &Error{Code: CodeSSLCACertBadFile, Message: "no certificates found in CA file"}
	}
	return pool, nil
}
