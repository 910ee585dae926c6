package display

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"go.viam.com/rdk/logging"

	"forcetrial/internal/acquisition"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return newFakeToken(p.err)
}

func TestMQTTPublisher(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("publishes json to topics", func(t *testing.T) {
		fp := &fakePublisher{}
		p := NewMQTTPublisher(fp, "bench", logger)

		p.OnProgress(acquisition.Progress{TrialID: "t1", Done: 1, Total: 4, Fraction: 0.25})
		p.OnDisplay(acquisition.Window{TrialID: "t1", Accepted: 2, Times: []float64{0, 0.01}, Values: []float64{1, 2}})

		if len(fp.msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(fp.msgs))
		}
		if fp.msgs[0].topic != "bench/progress" || fp.msgs[1].topic != "bench/window" {
			t.Errorf("unexpected topics %q, %q", fp.msgs[0].topic, fp.msgs[1].topic)
		}
		if !fp.msgs[1].retained {
			t.Error("expected retained window message")
		}

		var w acquisition.Window
		if err := json.Unmarshal(fp.msgs[1].payload, &w); err != nil {
			t.Fatalf("decoding window: %v", err)
		}
		if w.Accepted != 2 || len(w.Values) != 2 || w.Values[1] != 2 {
			t.Errorf("unexpected window %+v", w)
		}
	})

	t.Run("default prefix", func(t *testing.T) {
		p := NewMQTTPublisher(&fakePublisher{}, "", logger)
		if p.WindowTopic() != "forcetrial/window" {
			t.Errorf("unexpected topic %q", p.WindowTopic())
		}
	})

	t.Run("publish errors do not panic", func(t *testing.T) {
		fp := &fakePublisher{err: errors.New("broker gone")}
		p := NewMQTTPublisher(fp, "bench", logger)
		p.OnDisplay(acquisition.Window{TrialID: "t1"})
		if len(fp.msgs) != 1 {
			t.Errorf("expected 1 publish attempt, got %d", len(fp.msgs))
		}
	})
}

func TestFanout(t *testing.T) {
	var got []string
	rec := func(name string) acquisition.Observer {
		return acquisition.ObserverFuncs{
			Progress: func(acquisition.Progress) { got = append(got, name+":progress") },
			Display:  func(acquisition.Window) { got = append(got, name+":window") },
		}
	}
	f := Fanout{rec("a"), rec("b")}
	f.OnProgress(acquisition.Progress{})
	f.OnDisplay(acquisition.Window{})

	want := []string{"a:progress", "b:progress", "a:window", "b:window"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHub(t *testing.T) {
	hub := NewHub(logging.NewTestLogger(t))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv.URL)
	defer conn.Close()
	waitFor(t, func() bool { return hub.Clients() == 1 })

	hub.OnProgress(acquisition.Progress{TrialID: "t1", Done: 2, Total: 4, Fraction: 0.5})
	hub.OnDisplay(acquisition.Window{TrialID: "t1", Accepted: 1, Times: []float64{0}, Values: []float64{3.5}})

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Kind != KindProgress || msg.Progress == nil || msg.Progress.Fraction != 0.5 {
		t.Errorf("unexpected first message %+v", msg)
	}
	msg = Message{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Kind != KindWindow || msg.Window == nil || msg.Window.Values[0] != 3.5 {
		t.Errorf("unexpected second message %+v", msg)
	}

	t.Run("late client receives latest window", func(t *testing.T) {
		late := dial(t, srv.URL)
		defer late.Close()

		var msg Message
		if err := late.ReadJSON(&msg); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if msg.Kind != KindWindow || msg.Window.TrialID != "t1" {
			t.Errorf("unexpected replay %+v", msg)
		}
	})

	t.Run("disconnect unregisters", func(t *testing.T) {
		conn.Close()
		waitFor(t, func() bool { return hub.Clients() == 0 })
	})
}
