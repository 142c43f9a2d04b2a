package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/golang-jwt/jwt/v5"

	"github.com/l7mp/dflow/pkg/api/graph/v1alpha1"
	"github.com/l7mp/dflow/pkg/auth"
)

var _ = Describe("Token Generation and Authentication", func() {
	var (
		privateKey, publicKey = mustGenerateKeyPair()
		generator             = auth.NewTokenGenerator(privateKey)
		authenticator         = auth.NewJWTAuthenticator(publicKey)
	)

	It("should round-trip the claims", func() {
		grants := []auth.Grant{{Path: "/votes", Permission: v1alpha1.Read}}
		token, err := generator.GenerateToken("alice", grants, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		user, err := authenticator.Authenticate(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Name).To(Equal("alice"))
		Expect(user.Grants).To(Equal(grants))
	})

	It("should read the token from the header or the query", func() {
		token, err := generator.GenerateToken("bob", nil, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		req := httptest.NewRequest(http.MethodGet, "/ws/votes", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		user, ok, err := authenticator.AuthenticateRequest(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(user.Name).To(Equal("bob"))

		req = httptest.NewRequest(http.MethodGet, "/ws/votes?"+auth.TokenQueryParam+"="+token, nil)
		user, ok, err = authenticator.AuthenticateRequest(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(user.Name).To(Equal("bob"))
	})

	It("should report a missing token", func() {
		req := httptest.NewRequest(http.MethodGet, "/ws/votes", nil)
		user, ok, err := authenticator.AuthenticateRequest(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
		Expect(user).To(BeNil())
	})

	It("should reject a malformed header", func() {
		req := httptest.NewRequest(http.MethodGet, "/ws/votes", nil)
		req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		_, _, err := authenticator.AuthenticateRequest(req)
		Expect(errors.Is(err, auth.ErrUnauthenticated)).To(BeTrue())
	})

	It("should reject expired tokens", func() {
		claims := &auth.Claims{
			Username: "carol",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "dflow",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
		Expect(err).NotTo(HaveOccurred())

		_, err = authenticator.Authenticate(token)
		Expect(errors.Is(err, auth.ErrUnauthenticated)).To(BeTrue())
	})

	It("should reject tokens signed with another key", func() {
		otherKey, _ := mustGenerateKeyPair()
		token, err := auth.NewTokenGenerator(otherKey).GenerateToken("mallory", nil, time.Hour)
		Expect(err).NotTo(HaveOccurred())

		_, err = authenticator.Authenticate(token)
		Expect(err).To(HaveOccurred())
	})

	It("should load keys from files", func() {
		priv, pub, err := auth.GenerateKeyPair(1024)
		Expect(err).NotTo(HaveOccurred())
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "key.pem"), priv, 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "pub.pem"), pub, 0o644)).To(Succeed())

		_, err = auth.LoadPrivateKey(filepath.Join(dir, "key.pem"))
		Expect(err).NotTo(HaveOccurred())
		_, err = auth.LoadPublicKey(filepath.Join(dir, "pub.pem"))
		Expect(err).NotTo(HaveOccurred())
		_, err = auth.LoadPublicKey(filepath.Join(dir, "missing.pem"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Path permissions", func() {
	It("should give users without grants the configured permission", func() {
		u := &auth.User{Name: "admin"}
		Expect(u.Permission("/votes", v1alpha1.ReadWrite)).To(Equal(v1alpha1.ReadWrite))
		Expect(u.Permission("/votes", v1alpha1.Read)).To(Equal(v1alpha1.Read))
	})

	It("should intersect the configured permission with the grants", func() {
		u := &auth.User{Name: "alice", Grants: []auth.Grant{
			{Path: "/votes", Permission: v1alpha1.Read},
			{Path: "/stories", Permission: v1alpha1.Write},
		}}
		Expect(u.Permission("/votes", v1alpha1.ReadWrite)).To(Equal(v1alpha1.Read))
		Expect(u.Permission("/votes", v1alpha1.Write)).To(Equal(v1alpha1.NoPermission))
		Expect(u.Permission("/stories", v1alpha1.ReadWrite)).To(Equal(v1alpha1.Write))
		Expect(u.Permission("/other", v1alpha1.ReadWrite)).To(Equal(v1alpha1.NoPermission))
	})

	It("should combine matching grants and honor the wildcard", func() {
		u := &auth.User{Name: "bob", Grants: []auth.Grant{
			{Path: "*", Permission: v1alpha1.Read},
			{Path: "/votes", Permission: v1alpha1.Write},
		}}
		Expect(u.Permission("/votes", v1alpha1.ReadWrite)).To(Equal(v1alpha1.ReadWrite))
		Expect(u.Permission("/other", v1alpha1.ReadWrite)).To(Equal(v1alpha1.Read))
	})
})
