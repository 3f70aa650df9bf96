package imap

import (
	"crypto/tls"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
)

// transport is the minimal set of mailbox commands the session manager
// issues. The real implementation wraps an emersion/go-imap client; tests
// substitute a fake to exercise the reconnect paths without a server.
type transport interface {
	Login(user, password string) error
	Select(mailbox string) error
	Noop() error
	SearchUnseen() ([]uint32, error)
	FetchRaw(id uint32) ([]byte, error)
	MarkSeen(id uint32) error
	Logout() error
}

type dialFunc func() (transport, error)

type imapTransport struct {
	client *imapclient.Client
}

func dialIMAP(host string, port int, secure bool) (transport, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	var client *imapclient.Client
	var err error
	if secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, err
	}
	return &imapTransport{client: client}, nil
}

func (t *imapTransport) Login(user, password string) error {
	return t.client.Login(user, password)
}

func (t *imapTransport) Select(mailbox string) error {
	_, err := t.client.Select(mailbox, false)
	return err
}

func (t *imapTransport) Noop() error {
	return t.client.Noop()
}

func (t *imapTransport) SearchUnseen() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return t.client.Search(criteria)
}

// fetchSection is the body section requested for message fetches. Peek
// keeps the server from setting \Seen as a fetch side effect; the flag is
// set explicitly via MarkSeen once the message has been normalized.
func fetchSection() *imap.BodySectionName {
	return &imap.BodySectionName{Peek: true}
}

func (t *imapTransport) FetchRaw(id uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)

	section := fetchSection()
	items := []imap.FetchItem{section.FetchItem()}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() { done <- t.client.Fetch(seqset, items, messages) }()

	var raw []byte
	for msg := range messages {
		if msg == nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		blob, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		raw = blob
	}
	if err := <-done; err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("no body returned for message %d", id)
	}
	return raw, nil
}

func (t *imapTransport) MarkSeen(id uint32) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(id)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	return t.client.Store(seqset, item, []interface{}{imap.SeenFlag}, nil)
}

func (t *imapTransport) Logout() error {
	return t.client.Logout()
}
