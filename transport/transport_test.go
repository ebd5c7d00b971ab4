package transport

import (
	"encoding/json"
	"net"
	"sync"
	"testing"
	"time"

	"post-rpc/wire"
)

func waitFor(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestBusBroadcastsToOthers(t *testing.T) {
	bus := NewBus()
	a := bus.Connect("origin-a")
	b := bus.Connect("origin-b")
	c := bus.Connect("origin-c")
	defer a.Close()
	defer b.Close()
	defer c.Close()

	gotB := make(chan Message, 1)
	gotC := make(chan Message, 1)
	gotA := make(chan Message, 1)
	b.Listen(func(m Message) { gotB <- m })
	c.Listen(func(m Message) { gotC <- m })
	a.Listen(func(m Message) { gotA <- m })

	if err := a.Send(Message{Data: []byte(`"hello"`)}); err != nil {
		t.Fatal(err)
	}

	mb := waitFor(t, gotB)
	if mb.Origin != "origin-a" {
		t.Fatalf("expect origin-a, got %q", mb.Origin)
	}
	waitFor(t, gotC)

	select {
	case <-gotA:
		t.Fatal("sender heard its own broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSourceAddressesSenderOnly(t *testing.T) {
	bus := NewBus()
	a := bus.Connect("a")
	b := bus.Connect("b")
	c := bus.Connect("c")
	defer a.Close()
	defer b.Close()
	defer c.Close()

	gotA := make(chan Message, 1)
	gotC := make(chan Message, 1)
	a.Listen(func(m Message) { gotA <- m })
	c.Listen(func(m Message) { gotC <- m })

	fromA := make(chan Message, 1)
	b.Listen(func(m Message) { fromA <- m })
	if err := a.Send(Message{Data: []byte(`"ping"`)}); err != nil {
		t.Fatal(err)
	}
	m := waitFor(t, fromA)

	if err := m.Source.Send(Message{Data: []byte(`"pong"`)}); err != nil {
		t.Fatal(err)
	}
	reply := waitFor(t, gotA)
	if string(reply.Data) != `"pong"` {
		t.Fatalf("expect pong, got %s", reply.Data)
	}
	select {
	case <-gotC:
		t.Fatal("reply leaked to a third endpoint")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSourceIsStablePerEndpoint(t *testing.T) {
	bus := NewBus()
	a := bus.Connect("a")
	b := bus.Connect("b")
	defer a.Close()
	defer b.Close()

	got := make(chan Message, 2)
	b.Listen(func(m Message) { got <- m })

	a.Send(Message{Data: []byte(`1`)})
	a.Send(Message{Data: []byte(`2`)})

	first := waitFor(t, got)
	second := waitFor(t, got)
	if first.Source != second.Source {
		t.Fatal("same sender produced two source identities")
	}
}

func TestPipeDelivery(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	got := make(chan Message, 1)
	b.Listen(func(m Message) { got <- m })

	if err := a.Send(Message{Data: []byte(`"x"`)}); err != nil {
		t.Fatal(err)
	}
	m := waitFor(t, got)
	if string(m.Data) != `"x"` {
		t.Fatalf("expect x, got %s", m.Data)
	}

	// The reply travels back over the same pipe.
	back := make(chan Message, 1)
	a.Listen(func(m Message) { back <- m })
	if err := m.Source.Send(Message{Data: []byte(`"y"`)}); err != nil {
		t.Fatal(err)
	}
	if string(waitFor(t, back).Data) != `"y"` {
		t.Fatal("reply did not come back over the pipe")
	}
}

func TestPipeClosedSendFails(t *testing.T) {
	a, b := Pipe()
	b.Close()
	a.Close()
	if err := a.Send(Message{Data: []byte(`1`)}); err == nil {
		t.Fatal("send on closed pipe succeeded")
	}
}

func TestChannelFiltersForeignTraffic(t *testing.T) {
	bus := NewBus()
	a := bus.Connect("a")
	b := bus.Connect("b")
	defer a.Close()
	defer b.Close()

	one := Channel(b, "channel-one")
	two := Channel(b, "channel-two")
	defer one.Close()
	defer two.Close()

	gotOne := make(chan Message, 4)
	gotTwo := make(chan Message, 4)
	one.Listen(func(m Message) { gotOne <- m })
	two.Listen(func(m Message) { gotTwo <- m })

	sendOne := Channel(a, "channel-one")
	if err := sendOne.Send(Message{Data: []byte(`"for one"`)}); err != nil {
		t.Fatal(err)
	}
	// Raw, un-enveloped noise on the shared medium.
	if err := a.Send(Message{Data: []byte(`"noise"`)}); err != nil {
		t.Fatal(err)
	}

	m := waitFor(t, gotOne)
	if string(m.Data) != `"for one"` {
		t.Fatalf("payload not unwrapped: %s", m.Data)
	}
	select {
	case m := <-gotTwo:
		t.Fatalf("channel-two observed foreign traffic: %s", m.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelWrapsOutgoing(t *testing.T) {
	bus := NewBus()
	a := bus.Connect("a")
	b := bus.Connect("b")
	defer a.Close()
	defer b.Close()

	raw := make(chan Message, 1)
	b.Listen(func(m Message) { raw <- m })

	ch := Channel(a, "chan-42")
	if err := ch.Send(Message{Data: []byte(`"payload"`)}); err != nil {
		t.Fatal(err)
	}

	var env wire.Envelope
	if err := json.Unmarshal(waitFor(t, raw).Data, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != wire.TypeCall || env.ChannelID != "chan-42" {
		t.Fatalf("bad envelope: %+v", env)
	}
	if string(env.Payload) != `"payload"` {
		t.Fatalf("bad payload: %s", env.Payload)
	}
}

func TestChannelCloseDetachesListeners(t *testing.T) {
	bus := NewBus()
	e := bus.Connect("e")
	defer e.Close()

	ch := Channel(e, "c")
	ch.Listen(func(Message) {})
	ch.Listen(func(Message) {})
	if n := e.Listeners(); n != 2 {
		t.Fatalf("expect 2 listeners, got %d", n)
	}
	ch.Close()
	if n := e.Listeners(); n != 0 {
		t.Fatalf("residual listeners after close: %d", n)
	}
}

func TestListenCancelDetaches(t *testing.T) {
	bus := NewBus()
	e := bus.Connect("e")
	defer e.Close()

	cancel := e.Listen(func(Message) {})
	if n := e.Listeners(); n != 1 {
		t.Fatalf("expect 1 listener, got %d", n)
	}
	cancel()
	if n := e.Listeners(); n != 0 {
		t.Fatalf("residual listener after cancel: %d", n)
	}
}

func TestSequentialDeliveryPerEndpoint(t *testing.T) {
	bus := NewBus()
	a := bus.Connect("a")
	b := bus.Connect("b")
	defer a.Close()
	defer b.Close()

	var mu sync.Mutex
	inHandler := false
	overlapped := false
	done := make(chan struct{}, 20)

	b.Listen(func(Message) {
		mu.Lock()
		if inHandler {
			overlapped = true
		}
		inHandler = true
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		inHandler = false
		mu.Unlock()
		done <- struct{}{}
	})

	for i := 0; i < 20; i++ {
		a.Send(Message{Data: []byte(`1`)})
	}
	for i := 0; i < 20; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("delivery stalled")
		}
	}
	if overlapped {
		t.Fatal("handlers overlapped on one endpoint")
	}
}

func TestFramedOverNetPipe(t *testing.T) {
	left, right := net.Pipe()
	a := Framed(left, "proc-a")
	b := Framed(right, "proc-b")
	defer a.Close()
	defer b.Close()

	got := make(chan Message, 1)
	b.Listen(func(m Message) { got <- m })

	if err := a.Send(Message{Data: []byte(`{"jsonrpc":"2.0","method":"m","params":[],"id":"1"}`)}); err != nil {
		t.Fatal(err)
	}
	m := waitFor(t, got)
	if m.Origin != "proc-a" {
		t.Fatalf("expect proc-a, got %q", m.Origin)
	}
	if wire.Classify(m.Data) != wire.KindRequest {
		t.Fatalf("payload mangled in framing: %s", m.Data)
	}

	// Replies ride the same stream via Source.
	back := make(chan Message, 1)
	a.Listen(func(m Message) { back <- m })
	if err := m.Source.Send(Message{Data: []byte(`{"jsonrpc":"2.0","result":1,"id":"1"}`)}); err != nil {
		t.Fatal(err)
	}
	if wire.Classify(waitFor(t, back).Data) != wire.KindSuccess {
		t.Fatal("reply mangled in framing")
	}
}

func TestFramedRejectsPortTransfer(t *testing.T) {
	left, right := net.Pipe()
	defer right.Close()
	a := Framed(left, "a")
	defer a.Close()

	p, _ := Pipe()
	if err := a.Send(Message{Data: []byte(`1`), Port: p}); err != ErrTransferUnsupported {
		t.Fatalf("expect ErrTransferUnsupported, got %v", err)
	}
}
