package profile

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Default connect timeout. Deliberately generous: named-instance resolution
// goes through the SQL Browser service and can add several seconds over
// high-latency VPN links before the TDS handshake even starts.
const DefaultConnectTimeout = 30 * time.Second

// ServerProfile describes one remote SQL Server target.
// Immutable after construction; the connection layer reloads profiles from
// the Provider on every pool (re)initialization.
type ServerProfile struct {
	// Key identifies the server within the application ("branch-north",
	// "warehouse-02", ...). Pools are keyed by it.
	Key string

	// Host is the server address (hostname or IP). Required.
	Host string

	// Port is the fixed TCP port. Zero means no fixed port: the driver
	// resolves the port via the SQL Browser service, which requires
	// Instance to be set.
	Port int

	// Instance is the named-instance identifier (e.g. "SQLEXPRESS").
	// Optional; ignored when Port is set.
	Instance string

	// Database is the initial catalog. Required.
	Database string

	// User and Password are SQL authentication credentials. User is required.
	User     string
	Password string

	// Encrypt controls transport encryption ("disable", "false", "true").
	// Empty means driver default.
	Encrypt string

	// TrustServerCertificate skips certificate validation. Common for
	// self-signed certs on LAN/VPN-only servers.
	TrustServerCertificate bool

	// AppName is reported to the server for session identification.
	AppName string

	// ConnectTimeout bounds the full connect sequence, including
	// named-instance resolution. Zero means DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Validate reports whether the profile carries everything needed to open
// a connection.
func (p *ServerProfile) Validate() error {
	switch {
	case p == nil:
		return ErrInvalidProfile
	case p.Key == "":
		return fmt.Errorf("%w: missing server key", ErrInvalidProfile)
	case p.Host == "":
		return fmt.Errorf("%w: missing host for %q", ErrInvalidProfile, p.Key)
	case p.Database == "":
		return fmt.Errorf("%w: missing database for %q", ErrInvalidProfile, p.Key)
	case p.User == "":
		return fmt.Errorf("%w: missing user for %q", ErrInvalidProfile, p.Key)
	}
	return nil
}

// Timeout returns the effective connect timeout.
func (p *ServerProfile) Timeout() time.Duration {
	if p.ConnectTimeout > 0 {
		return p.ConnectTimeout
	}
	return DefaultConnectTimeout
}

// DSN builds the sqlserver:// connection URL consumed by go-mssqldb.
// Named instances appear as the URL path segment; a fixed port takes
// precedence over the instance name. The profile's connect timeout is
// propagated as the driver's dial timeout.
func (p *ServerProfile) DSN() string {
	host := p.Host
	if p.Port > 0 {
		host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}

	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(p.User, p.Password),
		Host:   host,
	}
	if p.Port == 0 && p.Instance != "" {
		u.Path = p.Instance
	}

	q := url.Values{}
	q.Set("database", p.Database)
	q.Set("dial timeout", strconv.Itoa(int(p.Timeout().Seconds())))
	if p.Encrypt != "" {
		q.Set("encrypt", p.Encrypt)
	}
	if p.TrustServerCertificate {
		q.Set("trustservercertificate", "true")
	}
	if p.AppName != "" {
		q.Set("app name", p.AppName)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// Addr returns a human-readable server address for logs and diagnostics,
// without credentials.
func (p *ServerProfile) Addr() string {
	if p.Port > 0 {
		return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	if p.Instance != "" {
		return p.Host + "\\" + p.Instance
	}
	return p.Host
}
