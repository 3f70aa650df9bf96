package imap

import (
	"fmt"
	"time"

	"triage/internal/config"
)

// SessionManager owns the long-lived connection to the remote mailbox.
// Transport failures are recovered here by replacing the session; callers
// see at worst an empty result for the affected poll cycle.
//
// Message identifiers are sequence numbers valid for the current session
// only. The ingestion loop keeps its own seen-set, so a reconnect that
// renumbers messages costs at most a re-fetch of already-seen mail, never
// a lost one.
type SessionManager struct {
	dial            dialFunc
	user            string
	password        string
	mailbox         string
	refreshInterval time.Duration

	conn        transport
	lastRefresh time.Time
	now         func() time.Time
}

func NewSessionManager(cfg config.Config) (*SessionManager, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("EMAIL_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("EMAIL_PASS", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &SessionManager{
		dial: func() (transport, error) {
			return dialIMAP(cfg.IMAPHost, cfg.IMAPPort, cfg.IMAPSecure)
		},
		user:            cfg.IMAPUser,
		password:        cfg.IMAPPassword,
		mailbox:         cfg.Mailbox,
		refreshInterval: time.Duration(cfg.RefreshIntervalSec) * time.Second,
		now:             time.Now,
	}, nil
}

// Connect replaces any existing session with a fresh authenticated one and
// selects the configured mailbox. Closing the previous session is
// best-effort: a broken connection cannot always be logged out cleanly.
func (s *SessionManager) Connect() error {
	if s.conn != nil {
		_ = s.conn.Logout()
		s.conn = nil
	}

	conn, err := s.dial()
	if err != nil {
		return fmt.Errorf("dial imap: %w", err)
	}
	if err := conn.Login(s.user, s.password); err != nil {
		_ = conn.Logout()
		return fmt.Errorf("imap login: %w", err)
	}
	if err := conn.Select(s.mailbox); err != nil {
		_ = conn.Logout()
		return fmt.Errorf("select %s: %w", s.mailbox, err)
	}

	s.conn = conn
	s.lastRefresh = s.now()
	fmt.Printf("imap session established mailbox=%s\n", s.mailbox)
	return nil
}

// SelectMailbox re-selects the active folder to keep server-side session
// state valid. On failure it falls back to a single full reconnect before
// propagating the original error.
func (s *SessionManager) SelectMailbox() error {
	if s.conn == nil {
		return s.Connect()
	}
	if err := s.conn.Select(s.mailbox); err != nil {
		fmt.Printf("mailbox refresh failed, reconnecting: %v\n", err)
		if cerr := s.Connect(); cerr != nil {
			return fmt.Errorf("select %s: %w", s.mailbox, err)
		}
		return nil
	}
	s.lastRefresh = s.now()
	return nil
}

// FetchUnseen returns the identifiers currently flagged unseen. The session
// is refreshed on its cadence and probed with a no-op first; a dead session
// is replaced transparently and the search retried once. Zero unseen
// messages is a nil slice, not an error.
func (s *SessionManager) FetchUnseen() ([]uint32, error) {
	if s.conn == nil {
		if err := s.Connect(); err != nil {
			return nil, err
		}
	}

	if s.now().Sub(s.lastRefresh) > s.refreshInterval {
		if err := s.SelectMailbox(); err != nil {
			return nil, err
		}
	}

	if err := s.conn.Noop(); err != nil {
		fmt.Printf("liveness probe failed, reconnecting: %v\n", err)
		if err := s.Connect(); err != nil {
			return nil, err
		}
	}

	ids, err := s.conn.SearchUnseen()
	if err != nil {
		if cerr := s.Connect(); cerr != nil {
			return nil, cerr
		}
		ids, err = s.conn.SearchUnseen()
		if err != nil {
			return nil, fmt.Errorf("search unseen: %w", err)
		}
	}
	return ids, nil
}

// Fetch retrieves the full raw payload for one message. The message is
// deliberately not marked seen here: MarkSeen runs only after the caller
// has normalized the payload successfully, so a crash mid-processing
// leaves the message unseen and eligible for the next poll.
func (s *SessionManager) Fetch(id uint32) ([]byte, error) {
	if s.conn == nil {
		if err := s.Connect(); err != nil {
			return nil, err
		}
	}
	raw, err := s.conn.FetchRaw(id)
	if err != nil {
		if cerr := s.Connect(); cerr != nil {
			return nil, cerr
		}
		return s.conn.FetchRaw(id)
	}
	return raw, nil
}

// MarkSeen sets the \Seen flag at the transport level.
func (s *SessionManager) MarkSeen(id uint32) error {
	if s.conn == nil {
		return fmt.Errorf("mark seen %d: no active session", id)
	}
	return s.conn.MarkSeen(id)
}

// Close logs out of the current session if one exists.
func (s *SessionManager) Close() {
	if s.conn != nil {
		_ = s.conn.Logout()
		s.conn = nil
	}
}
