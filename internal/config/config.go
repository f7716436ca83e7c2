// Package config loads the credentials file describing the account pairs to
// migrate. The file is a sequence of account objects; yaml.v3 parses both the
// YAML form and a plain JSON array.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Security modes accepted for an IMAP endpoint.
const (
	SecurityTLS      = "tls"      // implicit TLS from the first byte
	SecurityStartTLS = "starttls" // plaintext connect, STARTTLS upgrade
	SecurityNone     = "none"     // plaintext throughout
)

// Server describes one IMAP endpoint, source or destination.
type Server struct {
	Server      string `yaml:"server"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	Token       string `yaml:"token"` // OAuth access token, XOAUTH2
	Security    string `yaml:"security"`
	InsecureTLS bool   `yaml:"insecure_tls"`
}

// Upload describes an optional SFTP hand-off of a finished export tree.
type Upload struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Path     string `yaml:"path"`
}

// Export directs an account's messages into a local maildir tree instead of
// a destination server.
type Export struct {
	Dir    string  `yaml:"dir"`
	Upload *Upload `yaml:"upload"`
}

// Account is one source/destination pair, processed as a unit.
type Account struct {
	Src    Server  `yaml:"src"`
	Dst    *Server `yaml:"dst"`
	Export *Export `yaml:"export"`
}

// Load reads and validates the credentials file. Any problem here is fatal:
// no connection is attempted with a partial account list.
func Load(path string) ([]Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var accounts []Account
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("credentials file %s lists no accounts", path)
	}

	for i := range accounts {
		if err := accounts[i].validate(); err != nil {
			return nil, fmt.Errorf("account %d: %w", i+1, err)
		}
	}
	return accounts, nil
}

func (a *Account) validate() error {
	if err := a.Src.validate("src"); err != nil {
		return err
	}

	switch {
	case a.Dst == nil && a.Export == nil:
		return fmt.Errorf("needs a dst server or an export section")
	case a.Dst != nil && a.Export != nil:
		return fmt.Errorf("dst and export are mutually exclusive")
	}

	if a.Dst != nil {
		if err := a.Dst.validate("dst"); err != nil {
			return err
		}
	}
	if a.Export != nil {
		if a.Export.Dir == "" {
			return fmt.Errorf("export: dir is required")
		}
		if up := a.Export.Upload; up != nil {
			if up.Host == "" || up.User == "" || up.Password == "" || up.Path == "" {
				return fmt.Errorf("export: upload needs host, user, password and path")
			}
			if up.Port == 0 {
				up.Port = 22
			}
		}
	}
	return nil
}

// validate fills documented defaults (port, security mode) but never invents
// a server, user or secret.
func (s *Server) validate(role string) error {
	if s.Server == "" {
		return fmt.Errorf("%s: server is required", role)
	}
	if s.User == "" {
		return fmt.Errorf("%s: user is required", role)
	}
	if s.Password == "" && s.Token == "" {
		return fmt.Errorf("%s: a password or an oauth token is required", role)
	}
	if s.Password != "" && s.Token != "" {
		return fmt.Errorf("%s: password and token are mutually exclusive", role)
	}

	switch s.Security {
	case "":
		s.Security = SecurityTLS
	case SecurityTLS, SecurityStartTLS, SecurityNone:
	default:
		return fmt.Errorf("%s: unknown security mode %q", role, s.Security)
	}

	if s.Port == 0 {
		if s.Security == SecurityTLS {
			s.Port = 993
		} else {
			s.Port = 143
		}
	}
	return nil
}

// Addr returns the dialable host:port of the endpoint.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Server, s.Port)
}
