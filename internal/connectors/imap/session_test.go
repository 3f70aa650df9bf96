package imap

import (
	"errors"
	"testing"
	"time"
)

type fakeTransport struct {
	noopErr   error
	selectErr error
	searchErr error
	unseen    []uint32
	raw       map[uint32][]byte
	marked    []uint32
	selects   int
	noops     int
	searches  int
	loggedOut bool
}

func (f *fakeTransport) Login(user, password string) error { return nil }

func (f *fakeTransport) Select(mailbox string) error {
	f.selects++
	return f.selectErr
}

func (f *fakeTransport) Noop() error {
	f.noops++
	return f.noopErr
}

func (f *fakeTransport) SearchUnseen() ([]uint32, error) {
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.unseen, nil
}

func (f *fakeTransport) FetchRaw(id uint32) ([]byte, error) {
	if blob, ok := f.raw[id]; ok {
		return blob, nil
	}
	return nil, errors.New("no such message")
}

func (f *fakeTransport) MarkSeen(id uint32) error {
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeTransport) Logout() error {
	f.loggedOut = true
	return nil
}

func newTestManager(transports ...transport) *SessionManager {
	next := 0
	return &SessionManager{
		dial: func() (transport, error) {
			if next >= len(transports) {
				return nil, errors.New("no more transports")
			}
			t := transports[next]
			next++
			return t, nil
		},
		user:            "user",
		password:        "pass",
		mailbox:         "INBOX",
		refreshInterval: time.Minute,
		now:             time.Now,
	}
}

func TestFetchSectionUsesPeek(t *testing.T) {
	item := fetchSection().FetchItem()
	if string(item) != "BODY.PEEK[]" {
		t.Fatalf("fetch item=%q, a non-peek fetch marks the message seen server-side", item)
	}
}

func TestFetchUnseenReconnectsOnProbeFailure(t *testing.T) {
	broken := &fakeTransport{noopErr: errors.New("connection reset")}
	healthy := &fakeTransport{unseen: []uint32{3, 7}}
	mgr := newTestManager(broken, healthy)

	if err := mgr.Connect(); err != nil {
		t.Fatal(err)
	}

	ids, err := mgr.FetchUnseen()
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if len(ids) != 2 || ids[0] != 3 || ids[1] != 7 {
		t.Fatalf("ids=%v", ids)
	}
	if !broken.loggedOut {
		t.Fatal("broken session was not closed")
	}
	if healthy.searches != 1 {
		t.Fatalf("searches=%d", healthy.searches)
	}
}

func TestFetchUnseenRetriesSearchAfterReconnect(t *testing.T) {
	flaky := &fakeTransport{searchErr: errors.New("BAD command")}
	healthy := &fakeTransport{unseen: []uint32{5}}
	mgr := newTestManager(flaky, healthy)

	if err := mgr.Connect(); err != nil {
		t.Fatal(err)
	}

	ids, err := mgr.FetchUnseen()
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("ids=%v", ids)
	}
}

func TestFetchUnseenEmptyMailbox(t *testing.T) {
	mgr := newTestManager(&fakeTransport{})

	ids, err := mgr.FetchUnseen()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Fatalf("ids=%v", ids)
	}
}

func TestSelectMailboxReconnectsOnFailure(t *testing.T) {
	stale := &fakeTransport{}
	fresh := &fakeTransport{}
	mgr := newTestManager(stale, fresh)

	if err := mgr.Connect(); err != nil {
		t.Fatal(err)
	}
	stale.selectErr = errors.New("mailbox gone")

	if err := mgr.SelectMailbox(); err != nil {
		t.Fatalf("expected reconnect to recover, got %v", err)
	}
	if !stale.loggedOut {
		t.Fatal("stale session was not closed")
	}
	if mgr.conn != fresh {
		t.Fatal("manager did not adopt the fresh session")
	}
}

func TestRefreshCadenceReselects(t *testing.T) {
	conn := &fakeTransport{}
	mgr := newTestManager(conn)
	if err := mgr.Connect(); err != nil {
		t.Fatal(err)
	}
	selectsAfterConnect := conn.selects

	// Pretend the last refresh happened long ago.
	mgr.lastRefresh = time.Now().Add(-2 * time.Minute)

	if _, err := mgr.FetchUnseen(); err != nil {
		t.Fatal(err)
	}
	if conn.selects != selectsAfterConnect+1 {
		t.Fatalf("selects=%d, want %d", conn.selects, selectsAfterConnect+1)
	}
}

func TestConnectReplacesPriorSession(t *testing.T) {
	first := &fakeTransport{}
	second := &fakeTransport{}
	mgr := newTestManager(first, second)

	if err := mgr.Connect(); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Connect(); err != nil {
		t.Fatal(err)
	}
	if !first.loggedOut {
		t.Fatal("first session was not closed")
	}
	if mgr.conn != second {
		t.Fatal("manager did not adopt the second session")
	}
}

func TestFetchRecoversSession(t *testing.T) {
	dead := &fakeTransport{}
	alive := &fakeTransport{raw: map[uint32][]byte{9: []byte("raw mail")}}
	mgr := newTestManager(dead, alive)

	if err := mgr.Connect(); err != nil {
		t.Fatal(err)
	}

	blob, err := mgr.Fetch(9)
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if string(blob) != "raw mail" {
		t.Fatalf("blob=%q", blob)
	}
}
