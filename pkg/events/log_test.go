package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	buyer  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	seller = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestLog_EmitAndHistory(t *testing.T) {
	l := NewLog(nil)

	l.Emit(NewMatchConfirmed(buyer, seller, 100, 40))
	l.Emit(NewPaymentSent(seller, 4000))

	history := l.History()
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Type != TypeMatchConfirmed || history[1].Type != TypePaymentSent {
		t.Errorf("history types = %s, %s", history[0].Type, history[1].Type)
	}
	if history[0].ID == "" || history[0].ID == history[1].ID {
		t.Errorf("event ids not unique: %q, %q", history[0].ID, history[1].ID)
	}
	if history[0].Buyer != buyer.Hex() || history[0].Seller != seller.Hex() {
		t.Errorf("match event parties = %q, %q", history[0].Buyer, history[0].Seller)
	}
}

func TestLog_SubscriberReceivesEvents(t *testing.T) {
	l := NewLog(nil)
	ch := l.Subscribe(4)

	l.Emit(NewPaymentReceived(buyer, 4001))

	select {
	case e := <-ch:
		if e.Type != TypePaymentReceived || e.Party != buyer.Hex() || e.Amount != 4001 {
			t.Errorf("unexpected event: %+v", e)
		}
	default:
		t.Fatal("subscriber did not receive the event")
	}
}

func TestLog_SlowSubscriberNeverBlocks(t *testing.T) {
	l := NewLog(nil)
	l.Subscribe(1) // nobody drains this

	// Emission must complete no matter how far behind the subscriber is.
	for i := 0; i < 100; i++ {
		l.Emit(NewPaymentSent(seller, int64(i)))
	}
	if l.Len() != 100 {
		t.Errorf("log length = %d, want 100", l.Len())
	}
}

func TestLog_FileSinkWriteFailureIsLogged(t *testing.T) {
	core, observed := observer.New(zap.WarnLevel)
	path := filepath.Join(t.TempDir(), "events.log")
	l, err := NewLogWithFile(zap.New(core), path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}

	// Break the sink out from under the log; emission must still append
	// in memory and warn about the dead sink.
	l.file.Close()
	l.Emit(NewPaymentSent(seller, 1))

	if l.Len() != 1 {
		t.Errorf("log length = %d, want 1", l.Len())
	}
	if observed.FilterMessage("event_sink_write_failed").Len() != 1 {
		t.Error("sink write failure was not logged")
	}
}

func TestLog_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.log")
	l, err := NewLogWithFile(nil, path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}

	l.Emit(NewMatchConfirmed(buyer, seller, 100, 40))
	l.Emit(NewInstallationRegistered(0, seller, 500))
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %d not valid JSON: %v", lines, err)
		}
		lines++
	}
	if lines != 2 {
		t.Errorf("sink lines = %d, want 2", lines)
	}
}
