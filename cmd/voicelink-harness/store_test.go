package main

import (
	"testing"
	"time"
)

func TestStoreSessionLifecycle(t *testing.T) {
	st := newStore(nil)

	a := st.createSession()
	b := st.createSession()
	if a.ID == "" || b.ID == "" {
		t.Fatalf("createSession returned empty id: %q, %q", a.ID, b.ID)
	}
	if a.ID == b.ID {
		t.Fatalf("createSession returned duplicate id %q", a.ID)
	}

	got, ok := st.session(a.ID)
	if !ok {
		t.Fatalf("session(%q) not found", a.ID)
	}
	if got.ID != a.ID {
		t.Errorf("session id = %q, want %q", got.ID, a.ID)
	}

	if _, ok := st.session("unknown"); ok {
		t.Error("session(unknown) returned ok")
	}
}

func TestStoreBookAttachment(t *testing.T) {
	st := newStore(nil)
	sess := st.createSession()

	if st.setBook("unknown", "dune.pdf", "files/123", "application/pdf") {
		t.Error("setBook on unknown session returned true")
	}
	if !st.setBook(sess.ID, "dune.pdf", "files/123", "application/pdf") {
		t.Fatal("setBook on known session returned false")
	}

	got, _ := st.session(sess.ID)
	if got.BookName != "dune.pdf" || got.BookURI != "files/123" || got.BookMIME != "application/pdf" {
		t.Errorf("book = %q/%q/%q, want dune.pdf/files/123/application/pdf",
			got.BookName, got.BookURI, got.BookMIME)
	}

	if st.clearBook("unknown") {
		t.Error("clearBook on unknown session returned true")
	}
	if !st.clearBook(sess.ID) {
		t.Fatal("clearBook on known session returned false")
	}
	got, _ = st.session(sess.ID)
	if got.BookName != "" || got.BookURI != "" || got.BookMIME != "" {
		t.Errorf("book not cleared: %q/%q/%q", got.BookName, got.BookURI, got.BookMIME)
	}
}

func TestStoreJoinRoomValidatesToken(t *testing.T) {
	st := newStore(nil)
	sess := st.createSession()

	r := st.mintRoom(sess.ID, "mars-flash")
	if r.ID == "" || r.Token == "" {
		t.Fatalf("mintRoom returned empty credentials: %q/%q", r.ID, r.Token)
	}

	if _, ok := st.joinRoom(r.ID, "wrong-token"); ok {
		t.Error("joinRoom accepted a wrong token")
	}
	if _, ok := st.joinRoom("unknown-room", r.Token); ok {
		t.Error("joinRoom accepted an unknown room")
	}

	got, ok := st.joinRoom(r.ID, r.Token)
	if !ok {
		t.Fatal("joinRoom rejected valid credentials")
	}
	if got.SessionID != sess.ID {
		t.Errorf("room session = %q, want %q", got.SessionID, sess.ID)
	}
	if got.TTSModel != "mars-flash" {
		t.Errorf("room tts model = %q, want mars-flash", got.TTSModel)
	}
}

func TestStoreRoomExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	st := newStore(func() time.Time { return now })
	sess := st.createSession()

	r := st.mintRoom(sess.ID, "mars-pro")

	now = now.Add(roomTTL - time.Second)
	if _, ok := st.joinRoom(r.ID, r.Token); !ok {
		t.Fatal("room expired before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok := st.joinRoom(r.ID, r.Token); ok {
		t.Fatal("joined a room past its TTL")
	}

	// The failed join drops the expired room.
	st.mu.Lock()
	_, still := st.rooms[r.ID]
	st.mu.Unlock()
	if still {
		t.Error("expired room left in the registry after join attempt")
	}

	// Minting sweeps other expired rooms too.
	stale := st.mintRoom(sess.ID, "mars-flash")
	now = now.Add(roomTTL + time.Second)
	fresh := st.mintRoom(sess.ID, "mars-flash")
	st.mu.Lock()
	_, staleLeft := st.rooms[stale.ID]
	_, freshLeft := st.rooms[fresh.ID]
	st.mu.Unlock()
	if staleLeft {
		t.Error("mintRoom did not sweep the expired room")
	}
	if !freshLeft {
		t.Error("mintRoom swept the room it just created")
	}
}

func TestStoreCloseRoom(t *testing.T) {
	st := newStore(nil)
	sess := st.createSession()

	r := st.mintRoom(sess.ID, "mars-flash")
	st.closeRoom(r.ID)
	if _, ok := st.joinRoom(r.ID, r.Token); ok {
		t.Error("joined a closed room")
	}
}
