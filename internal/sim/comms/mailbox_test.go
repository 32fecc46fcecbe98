package comms

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSendBlocksUntilConsumerDrains(t *testing.T) {
	m := NewMailbox(1)
	ctx := context.Background()

	if err := m.Send(ctx, Shutdown{Robot: 1}); err != nil {
		t.Fatalf("first send: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- m.Send(ctx, Shutdown{Robot: 2}) }()

	select {
	case err := <-done:
		t.Fatalf("second send completed on a full mailbox: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	ev, ok := m.TryReceive()
	if !ok || ev.(Shutdown).Robot != 1 {
		t.Fatalf("first receive: %+v ok=%v", ev, ok)
	}
	if err := <-done; err != nil {
		t.Fatalf("second send after drain: %v", err)
	}
	ev, ok = m.TryReceive()
	if !ok || ev.(Shutdown).Robot != 2 {
		t.Fatalf("second receive: %+v ok=%v", ev, ok)
	}
}

func TestFIFOPerSender(t *testing.T) {
	m := NewMailbox(8)
	ctx := context.Background()
	const n = 200

	go func() {
		for i := 0; i < n; i++ {
			if err := m.Send(ctx, CollectionData{Robot: 1, Collected: i}); err != nil {
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		ev, err := m.Receive(ctx)
		if err != nil {
			t.Fatalf("receive %d: %v", i, err)
		}
		got := ev.(CollectionData).Collected
		if got != i {
			t.Fatalf("out of order: got %d at position %d", got, i)
		}
	}
}

func TestCloseStopsSendsButDrainsBuffer(t *testing.T) {
	m := NewMailbox(4)
	ctx := context.Background()
	m.Send(ctx, Shutdown{Robot: 1})
	m.Send(ctx, Shutdown{Robot: 2})
	m.Close()
	m.Close()

	if err := m.Send(ctx, Shutdown{Robot: 3}); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("send after close: got %v, want ErrChannelClosed", err)
	}
	for want := 1; want <= 2; want++ {
		ev, err := m.Receive(ctx)
		if err != nil {
			t.Fatalf("drain %d: %v", want, err)
		}
		if got := ev.(Shutdown).Robot; int(got) != want {
			t.Fatalf("drain order: got %d, want %d", got, want)
		}
	}
	if _, err := m.Receive(ctx); !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("receive on drained closed mailbox: got %v", err)
	}
	if m.TrySend(Shutdown{Robot: 4}) {
		t.Fatalf("trysend after close must fail")
	}
}

func TestCanceledContextUnblocks(t *testing.T) {
	m := NewMailbox(1)
	m.Send(context.Background(), Shutdown{Robot: 1})

	ctx, cancel := context.WithCancel(context.Background())
	sendDone := make(chan error, 1)
	go func() { sendDone <- m.Send(ctx, Shutdown{Robot: 2}) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-sendDone; !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("canceled send: got %v, want ErrChannelClosed", err)
	}

	m2 := NewMailbox(1)
	ctx2, cancel2 := context.WithCancel(context.Background())
	recvDone := make(chan error, 1)
	go func() {
		_, err := m2.Receive(ctx2)
		recvDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel2()
	if err := <-recvDone; !errors.Is(err, ErrChannelClosed) {
		t.Fatalf("canceled receive: got %v, want ErrChannelClosed", err)
	}
}

func TestTrySendRespectsCapacity(t *testing.T) {
	m := NewMailbox(2)
	if !m.TrySend(Shutdown{Robot: 1}) || !m.TrySend(Shutdown{Robot: 2}) {
		t.Fatalf("trysend should fill to capacity")
	}
	if m.TrySend(Shutdown{Robot: 3}) {
		t.Fatalf("trysend on full mailbox must fail")
	}
	if m.Len() != 2 || m.Cap() != 2 {
		t.Fatalf("len/cap: %d/%d", m.Len(), m.Cap())
	}
}
