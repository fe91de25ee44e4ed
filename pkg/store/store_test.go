package store

import (
	"context"
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nontawatt/OpenMediaTrust/pkg/assertions"
	"github.com/Nontawatt/OpenMediaTrust/pkg/canonicalize"
	"github.com/Nontawatt/OpenMediaTrust/pkg/crypto"
	"github.com/Nontawatt/OpenMediaTrust/pkg/manifest"
)

func newClaim(t *testing.T, tenant string) *manifest.Claim {
	t.Helper()
	b := assertions.NewBuilder("Acme")
	c, err := manifest.New("Acme/1.0", "video/mp4", manifest.WithTenant(tenant))
	require.NoError(t, err)
	h, err := b.Hash(assertions.SHA256, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855")
	require.NoError(t, err)
	c.Append(
		b.Actions(manifest.ActionCreated, assertions.ActionOptions{}),
		h,
		manifest.NewAssertion("com.acme.zeta", manifest.GenericMap{"b": "2", "a": "1"}),
	)
	return c
}

func openSQLite(t *testing.T, opts ...Option) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_RoundTripPreservesSignedClaim(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	key, err := crypto.GenerateECDSAKey(256)
	require.NoError(t, err)
	cert, err := crypto.SelfSignedCertificate(key, "desk", "Acme", time.Hour)
	require.NoError(t, err)
	signer, err := crypto.NewSigner(manifest.AlgES256, crypto.PrivateKey{Classical: key},
		crypto.WithCertificateChain(crypto.CertificateChain([]*x509.Certificate{cert}, nil)...))
	require.NoError(t, err)

	c := newClaim(t, "t1")
	require.NoError(t, signer.Sign(ctx, c))
	want, err := canonicalize.Claim(c)
	require.NoError(t, err)

	rec, err := s.Put(ctx, c)
	require.NoError(t, err)
	assert.True(t, rec.Signed)

	got, err := s.Get(ctx, c.InstanceID)
	require.NoError(t, err)
	assert.Equal(t, "t1", got.TenantID)
	assert.Equal(t, "video/mp4", got.Format)
	assert.Equal(t, rec.ClaimHash, got.ClaimHash)
	assert.JSONEq(t, string(rec.Raw), string(got.Raw))

	labels := make([]string, 0, len(got.Claim.Assertions))
	for _, a := range got.Claim.Assertions {
		labels = append(labels, a.Label)
	}
	assert.Equal(t, []string{manifest.LabelActions, manifest.LabelHash, "com.acme.zeta"}, labels)
	assert.Equal(t, c.Signature.Value, got.Claim.Signature.Value)

	canon, err := canonicalize.Claim(got.Claim)
	require.NoError(t, err)
	assert.Equal(t, want, canon)

	v, err := crypto.NewVerifier()
	require.NoError(t, err)
	assert.True(t, v.Verify(ctx, got.Claim))
}

func TestSQLite_UpsertListDelete(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := openSQLite(t, WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	a := newClaim(t, "t1")
	b := newClaim(t, "t1")
	other := newClaim(t, "t2")
	for _, c := range []*manifest.Claim{a, b, other} {
		_, err := s.Put(ctx, c)
		require.NoError(t, err)
	}

	a.Title = "revised"
	_, err := s.Put(ctx, a)
	require.NoError(t, err)

	recs, err := s.List(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, a.InstanceID, recs[0].InstanceID, "most recently stored first")
	assert.Equal(t, "revised", recs[0].Claim.Title)

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, b.InstanceID))
	_, err = s.Get(ctx, b.InstanceID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, b.InstanceID), ErrNotFound)
}

func TestPut_RejectsClaimWithoutID(t *testing.T) {
	s := openSQLite(t)
	_, err := s.Put(context.Background(), &manifest.Claim{})
	assert.ErrorIs(t, err, manifest.ErrInvalidClaim)
	_, err = s.Put(context.Background(), nil)
	assert.ErrorIs(t, err, manifest.ErrInvalidClaim)
}

func TestSQLMock_PutError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	now := time.Date(2025, 2, 3, 4, 5, 6, 7, time.UTC)
	s := New(db, DialectPostgres, WithClock(func() time.Time { return now }))
	c := newClaim(t, "t1")

	mock.ExpectExec(`INSERT INTO claims .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WithArgs(c.InstanceID, "t1", "video/mp4", false, sqlmock.AnyArg(), "2025-02-03T04:05:06.000000007Z", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err = s.Put(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(`SELECT .* FROM claims WHERE instance_id = \?`).
		WithArgs("xmp:iid:missing").
		WillReturnRows(sqlmock.NewRows([]string{"instance_id"}))

	_, err = New(db, DialectSQLite).Get(context.Background(), "xmp:iid:missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetCorruptRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	cols := []string{"instance_id", "tenant_id", "format", "signed", "claim_hash", "stored_at", "claim_json"}
	mock.ExpectQuery(`SELECT .* FROM claims`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("xmp:iid:x", "", "image/png", false, "h", "2025-02-03T04:05:06.000000000Z", "{not json"))

	_, err = New(db, DialectSQLite).Get(context.Background(), "xmp:iid:x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRebindAndDialect(t *testing.T) {
	pg := New(nil, DialectPostgres)
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := New(nil, DialectSQLite)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))

	for driver, want := range map[string]Dialect{"sqlite": DialectSQLite, "postgres": DialectPostgres} {
		d, err := DialectFor(driver)
		require.NoError(t, err, driver)
		assert.Equal(t, want, d)
	}
	_, err := DialectFor("mysql")
	assert.Error(t, err)
	_, err = Open(context.Background(), "mysql", "")
	assert.ErrorContains(t, err, "unsupported driver")
}
