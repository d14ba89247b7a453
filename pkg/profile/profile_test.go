package profile_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ordersync/dbcore/pkg/profile"
)

func TestServerProfile_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *profile.ServerProfile {
		return &profile.ServerProfile{
			Key:      "branch-north",
			Host:     "10.8.0.12",
			Database: "transfers",
			User:     "sync",
			Password: "secret",
		}
	}

	t.Run("accepts complete profile", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, valid().Validate())
	})

	t.Run("rejects missing host", func(t *testing.T) {
		t.Parallel()
		p := valid()
		p.Host = ""
		require.ErrorIs(t, p.Validate(), profile.ErrInvalidProfile)
	})

	t.Run("rejects missing database", func(t *testing.T) {
		t.Parallel()
		p := valid()
		p.Database = ""
		require.ErrorIs(t, p.Validate(), profile.ErrInvalidProfile)
	})

	t.Run("rejects missing user", func(t *testing.T) {
		t.Parallel()
		p := valid()
		p.User = ""
		require.ErrorIs(t, p.Validate(), profile.ErrInvalidProfile)
	})

	t.Run("rejects nil profile", func(t *testing.T) {
		t.Parallel()
		var p *profile.ServerProfile
		require.ErrorIs(t, p.Validate(), profile.ErrInvalidProfile)
	})
}

func TestServerProfile_DSN(t *testing.T) {
	t.Parallel()

	t.Run("fixed port", func(t *testing.T) {
		t.Parallel()

		p := &profile.ServerProfile{
			Key:      "hq",
			Host:     "db.example.local",
			Port:     1433,
			Database: "orders",
			User:     "app",
			Password: "p@ss/word",
		}

		u, err := url.Parse(p.DSN())
		require.NoError(t, err)
		require.Equal(t, "sqlserver", u.Scheme)
		require.Equal(t, "db.example.local:1433", u.Host)
		require.Empty(t, u.Path)
		require.Equal(t, "orders", u.Query().Get("database"))

		pass, ok := u.User.Password()
		require.True(t, ok)
		require.Equal(t, "p@ss/word", pass)
	})

	t.Run("named instance in path", func(t *testing.T) {
		t.Parallel()

		p := &profile.ServerProfile{
			Key:      "branch",
			Host:     "10.8.0.12",
			Instance: "SQLEXPRESS",
			Database: "transfers",
			User:     "sync",
			Password: "secret",
		}

		u, err := url.Parse(p.DSN())
		require.NoError(t, err)
		require.Equal(t, "10.8.0.12", u.Host)
		require.Equal(t, "/SQLEXPRESS", u.Path)
	})

	t.Run("port takes precedence over instance", func(t *testing.T) {
		t.Parallel()

		p := &profile.ServerProfile{
			Key:      "branch",
			Host:     "10.8.0.12",
			Port:     14330,
			Instance: "SQLEXPRESS",
			Database: "transfers",
			User:     "sync",
		}

		u, err := url.Parse(p.DSN())
		require.NoError(t, err)
		require.Equal(t, "10.8.0.12:14330", u.Host)
		require.Empty(t, u.Path)
	})

	t.Run("dial timeout reflects connect timeout", func(t *testing.T) {
		t.Parallel()

		p := &profile.ServerProfile{
			Key:            "branch",
			Host:           "10.8.0.12",
			Database:       "transfers",
			User:           "sync",
			ConnectTimeout: 45 * time.Second,
		}

		u, err := url.Parse(p.DSN())
		require.NoError(t, err)
		require.Equal(t, "45", u.Query().Get("dial timeout"))
	})

	t.Run("protocol options", func(t *testing.T) {
		t.Parallel()

		p := &profile.ServerProfile{
			Key:                    "branch",
			Host:                   "10.8.0.12",
			Database:               "transfers",
			User:                   "sync",
			Encrypt:                "true",
			TrustServerCertificate: true,
			AppName:                "ordersync",
		}

		u, err := url.Parse(p.DSN())
		require.NoError(t, err)
		require.Equal(t, "true", u.Query().Get("encrypt"))
		require.Equal(t, "true", u.Query().Get("trustservercertificate"))
		require.Equal(t, "ordersync", u.Query().Get("app name"))
	})
}

func TestServerProfile_Addr(t *testing.T) {
	t.Parallel()

	require.Equal(t, "db:1433", (&profile.ServerProfile{Host: "db", Port: 1433}).Addr())
	require.Equal(t, `db\SQLEXPRESS`, (&profile.ServerProfile{Host: "db", Instance: "SQLEXPRESS"}).Addr())
	require.Equal(t, "db", (&profile.ServerProfile{Host: "db"}).Addr())
}

func TestStaticProvider(t *testing.T) {
	t.Parallel()

	sp := profile.StaticProvider{
		"hq": {Key: "hq", Host: "db", Database: "orders", User: "app"},
	}

	got, err := sp.ServerProfile(context.Background(), "hq")
	require.NoError(t, err)
	require.Equal(t, "hq", got.Key)

	_, err = sp.ServerProfile(context.Background(), "missing")
	require.ErrorIs(t, err, profile.ErrProfileNotFound)
}
