package httpapi

import (
	"crypto/ed25519"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/QWED-AI/qwed-verification/internal/controlplane"
	"github.com/QWED-AI/qwed-verification/internal/httputil"
)

// attestationClaims carries the facts a third party needs to check a
// verdict was actually produced by this gateway, signed with EdDSA
// (Ed25519) rather than the gateway's own request-auth tokens — an
// attestation is meant to be verified by someone who never saw the
// original request, so it needs an asymmetric signature the holder of
// /attestation/keys' published public key can check without trusting the
// gateway's private key.
type attestationClaims struct {
	TenantID  string `json:"tenant_id"`
	EntryHash string `json:"entry_hash"`
	Verdict   string `json:"verdict"`
	Engine    string `json:"engine"`
	jwt.RegisteredClaims
}

// signAttestation signs the claims describing resp's verdict. EntryHash
// is left empty here: the audit chain entry for this request is written
// by the pipeline itself (see controlplane.Pipeline.writeAudit), after
// the envelope has already been built, so the token attests to the
// verdict and tenant rather than to a specific chain position.
func (s *Server) signAttestation(tenantID string, resp controlplane.Response) (string, error) {
	if len(s.SigningKey) == 0 || resp.Result == nil {
		return "", errNoSigningKey
	}

	claims := attestationClaims{
		TenantID: tenantID,
		Verdict:  string(resp.Result.Verdict),
		Engine:   resp.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			Subject:   resp.TraceID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.SigningKey)
}

var errNoSigningKey = attestationError("no attestation signing key configured")

type attestationError string

func (e attestationError) Error() string { return string(e) }

// jwkResponse is the minimal JWK the gateway publishes for its Ed25519
// attestation key (RFC 8037 OKP), enough for a verifier to reconstruct
// the public key and check a token's signature.
type jwkResponse struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

func (s *Server) handleAttestationKeys(w http.ResponseWriter, r *http.Request) {
	if len(s.SigningKey) == 0 {
		httputil.WriteJSON(w, http.StatusOK, jwkResponse{Keys: []jwk{}})
		return
	}

	pub := s.SigningKey.Public().(ed25519.PublicKey)
	httputil.WriteJSON(w, http.StatusOK, jwkResponse{
		Keys: []jwk{{
			Kty: "OKP",
			Crv: "Ed25519",
			X:   base64.RawURLEncoding.EncodeToString(pub),
			Use: "sig",
			Alg: "EdDSA",
			Kid: "qwed-attestation-1",
		}},
	})
}
