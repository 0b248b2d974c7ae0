package auth

import (
	"testing"
	"time"

	"campus-takeout/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWT_IssueVerify(t *testing.T) {
	j := NewJWT("secret", time.Hour)

	token, err := j.Issue(Identity{UserID: 7, Name: "alice", Role: RoleShop})
	require.NoError(t, err)

	id, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: 7, Name: "alice", Role: RoleShop}, id)
}

func TestJWT_Verify_Failures(t *testing.T) {
	j := NewJWT("secret", time.Hour)
	other := NewJWT("other", time.Hour)
	foreign, err := other.Issue(Identity{UserID: 1})
	require.NoError(t, err)

	expired := NewJWT("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, err := expired.Issue(Identity{UserID: 1})
	require.NoError(t, err)

	noUID, err := j.Issue(Identity{Name: "nobody"})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UID: 1}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		kind  domain.Kind
	}{
		{name: "empty", token: "", kind: domain.KindUnauthenticated},
		{name: "garbage", token: "abc.def.ghi", kind: domain.KindUnauthenticated},
		{name: "wrong secret", token: foreign, kind: domain.KindUnauthenticated},
		{name: "expired", token: old, kind: domain.KindTokenExpired},
		{name: "missing uid", token: noUID, kind: domain.KindUnauthenticated},
		{name: "alg none", token: none, kind: domain.KindUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := j.Verify(tt.token)
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}
}

func TestJWT_DefaultRole(t *testing.T) {
	j := NewJWT("secret", time.Hour)
	token, err := j.Issue(Identity{UserID: 3})
	require.NoError(t, err)

	id, err := j.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, RoleCustomer, id.Role)
}
